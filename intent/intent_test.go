package intent

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      Flags
	}{
		{name: "plain question", utterance: "what is the main concept of langgraph", want: Flags{}},
		{name: "confusion", utterance: "I don't understand", want: Flags{Simplify: true}},
		{name: "curly apostrophe", utterance: "I don’t understand", want: Flags{Simplify: true}},
		{name: "ordered request", utterance: "tell me in order", want: Flags{Simplify: true}},
		{name: "not technical", utterance: "I'm not a tech person", want: Flags{Simplify: true}},
		{name: "eli5 upper case", utterance: "ELI5 reducers", want: Flags{Simplify: true}},
		{name: "verbose", utterance: "Explain checkpointers in detail", want: Flags{Verbose: true}},
		{name: "code", utterance: "Show me the code for a retry loop", want: Flags{Code: true}},
		{name: "verbose and code", utterance: "give me a detailed code example", want: Flags{Verbose: true, Code: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.utterance); got != tt.want {
				t.Errorf("Detect(%q) = %+v, want %+v", tt.utterance, got, tt.want)
			}
		})
	}
}

func TestSingleHeuristicsAgreeWithDetect(t *testing.T) {
	for _, u := range []string{"in depth please", "write a function", "break it down", "hello"} {
		f := Detect(u)
		if IsVerbose(u) != f.Verbose || WantsCode(u) != f.Code || IsSimplify(u) != f.Simplify {
			t.Errorf("heuristics disagree for %q: %+v", u, f)
		}
	}
}

func TestDetectIsDeterministic(t *testing.T) {
	u := "I'm confused, can you simplify the code?"
	first := Detect(u)
	for i := 0; i < 5; i++ {
		if got := Detect(u); got != first {
			t.Fatalf("Detect changed between calls: %+v vs %+v", first, got)
		}
	}
}
