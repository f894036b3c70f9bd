// Package intent holds the keyword heuristics that detect verbosity, code and
// simplification requests without calling a completion backend.
package intent

import "strings"

// Flags are the per-turn intents detected in an utterance. They never persist
// across turns.
type Flags struct {
	Verbose  bool `json:"verbose"`
	Code     bool `json:"code"`
	Simplify bool `json:"simplify"`
}

var verboseKeywords = []string{
	"in detail",
	"detailed",
	"more detail",
	"elaborate",
	"explain more",
	"in depth",
	"in-depth",
	"deep dive",
	"comprehensive",
	"thorough",
	"full explanation",
	"long answer",
	"everything about",
}

var codeKeywords = []string{
	"code",
	"snippet",
	"implement",
	"write a function",
	"write a script",
	"show me how to write",
	"sample program",
	"syntax for",
	"example program",
}

var simplifyKeywords = []string{
	"don't understand",
	"dont understand",
	"do not understand",
	"didn't understand",
	"didnt understand",
	"not a tech person",
	"not technical",
	"non-technical",
	"i'm confused",
	"im confused",
	"confusing",
	"too complicated",
	"too complex",
	"lost me",
	"explain like",
	"eli5",
	"like i'm 5",
	"like im 5",
	"like i'm five",
	"break it down",
	"in simple terms",
	"simple words",
	"simpler",
	"simplify",
	"plain english",
	"tell me in order",
	"step by step",
	"for a beginner",
	"i'm a beginner",
	"im a beginner",
	"what does that mean",
}

// Detect evaluates all three heuristics on utterance.
func Detect(utterance string) Flags {
	text := strings.ToLower(utterance)
	return Flags{
		Verbose:  containsAny(text, verboseKeywords),
		Code:     containsAny(text, codeKeywords),
		Simplify: containsAny(text, simplifyKeywords),
	}
}

// IsVerbose reports whether utterance asks for a detailed answer.
func IsVerbose(utterance string) bool {
	return containsAny(strings.ToLower(utterance), verboseKeywords)
}

// WantsCode reports whether utterance asks for code.
func WantsCode(utterance string) bool {
	return containsAny(strings.ToLower(utterance), codeKeywords)
}

// IsSimplify reports whether utterance asks for a simpler explanation.
func IsSimplify(utterance string) bool {
	return containsAny(strings.ToLower(utterance), simplifyKeywords)
}

func containsAny(text string, keywords []string) bool {
	text = normalizeApostrophes(text)
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// normalizeApostrophes folds typographic apostrophes typed by phone keyboards.
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}
