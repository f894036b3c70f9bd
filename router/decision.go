package router

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sweetpotato0/studybuddy/pkg/llmjson"
	"github.com/sweetpotato0/studybuddy/topic"
)

// Mode is the response mode selected for a turn.
type Mode string

const (
	ModeAnswer   Mode = "answer"
	ModeTeach    Mode = "teach"
	ModeQuiz     Mode = "quiz"
	ModeDebug    Mode = "debug"
	ModeClarify  Mode = "ask_clarify"
	ModeSimplify Mode = "simplify"
)

// Modes lists every mode.
var Modes = []Mode{ModeAnswer, ModeTeach, ModeQuiz, ModeDebug, ModeClarify, ModeSimplify}

var modeAliases = map[string]Mode{
	"answer":        ModeAnswer,
	"direct_answer": ModeAnswer,
	"direct":        ModeAnswer,
	"teach":         ModeTeach,
	"quiz":          ModeQuiz,
	"debug":         ModeDebug,
	"ask_clarify":   ModeClarify,
	"clarify":       ModeClarify,
	"simplify":      ModeSimplify,
}

// ParseMode maps raw backend text onto the closed set of modes.
func ParseMode(s string) (Mode, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	m, ok := modeAliases[key]
	return m, ok
}

// Style is the response formatting mode.
type Style string

const (
	StyleNormal Style = "normal"
	StyleSimple Style = "simple"
)

// Source records which path produced a decision.
type Source string

const (
	SourceHeuristic  Source = "heuristic"
	SourceClassifier Source = "classifier"
	SourceFallback   Source = "fallback"
)

const (
	// DefaultConfidence applies when the backend omits a usable confidence.
	DefaultConfidence = 0.5
	// FallbackConfidence is assigned to synthesized fallback decisions.
	FallbackConfidence = 0.3
	// RationaleParseFailure marks decisions synthesized from unparseable text.
	RationaleParseFailure = "parse failure"
)

// Decision is the typed routing decision for one turn. It is never persisted.
type Decision struct {
	Mode        Mode        `json:"mode"`
	Topic       topic.Topic `json:"topic"`
	Confidence  float64     `json:"confidence"`
	MissingInfo []string    `json:"missing_info"`
	Rationale   string      `json:"rationale"`
	Source      Source      `json:"source"`
	// Gated is set when the confidence gate forced a clarification.
	Gated bool `json:"gated,omitempty"`
	// Committed is set when the clarification cap forced a best guess.
	Committed bool `json:"committed,omitempty"`
}

// Fallback synthesizes the decision used when the backend reply cannot be used.
func Fallback(prior topic.Topic, rationale string) Decision {
	t := topic.Unknown
	if prior.IsSet() {
		t = prior
	}
	return Decision{
		Mode:        ModeClarify,
		Topic:       t,
		Confidence:  FallbackConfidence,
		MissingInfo: []string{},
		Rationale:   rationale,
		Source:      SourceFallback,
	}
}

// Parse turns raw backend text into a decision. Text without a decodable JSON
// object yields Fallback(prior, RationaleParseFailure).
func Parse(text string, prior topic.Topic) Decision {
	raw, ok := llmjson.ExtractObject(text)
	if !ok {
		return Fallback(prior, RationaleParseFailure)
	}
	return Normalize(raw)
}

// Normalize is the single place where untrusted backend fields become a
// trusted Decision.
func Normalize(raw map[string]any) Decision {
	d := Decision{
		Mode:        ModeClarify,
		Topic:       topic.Unknown,
		Confidence:  normalizeConfidence(raw["confidence"]),
		MissingInfo: normalizeList(firstOf(raw, "missing_info", "missingInfo", "missing")),
		Source:      SourceClassifier,
	}
	if s, ok := raw["mode"].(string); ok {
		if m, ok := ParseMode(s); ok {
			d.Mode = m
		}
	}
	if s, ok := raw["topic"].(string); ok {
		d.Topic = topic.Parse(s)
	}
	if s, ok := firstOf(raw, "rationale", "reason", "reasoning").(string); ok {
		d.Rationale = strings.TrimSpace(s)
	}
	return d
}

func firstOf(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v
		}
	}
	return nil
}

func normalizeConfidence(v any) float64 {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case int:
		f = float64(c)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(c, "%")), 64)
		if err != nil {
			return DefaultConfidence
		}
		if strings.HasSuffix(c, "%") {
			parsed /= 100
		}
		f = parsed
	default:
		return DefaultConfidence
	}
	if math.IsNaN(f) {
		return DefaultConfidence
	}
	return math.Max(0, math.Min(1, f))
}

func normalizeList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		switch s := item.(type) {
		case string:
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		case nil:
		default:
			out = append(out, fmt.Sprint(s))
		}
	}
	return out
}

// ResolveTopic applies topic stickiness: a decision that names no specific
// topic keeps the prior lock.
func ResolveTopic(d Decision, prior topic.Topic) topic.Topic {
	switch {
	case d.Topic.IsSpecific():
		return d.Topic
	case d.Topic == topic.General && !(d.Mode == ModeClarify && prior.IsSet()):
		return topic.General
	case prior.IsSet():
		return prior
	default:
		return topic.General
	}
}

// ResolveStyle selects simple formatting for simplify turns.
func ResolveStyle(d Decision, simplifyRequested bool) Style {
	if d.Mode == ModeSimplify || simplifyRequested {
		return StyleSimple
	}
	return StyleNormal
}

// NextAttempts updates the clarification-attempt counter.
func NextAttempts(mode Mode, attempts int) int {
	if mode == ModeClarify {
		return max(attempts, 0) + 1
	}
	return 0
}

// LocksQuestion reports whether the turn's utterance becomes the last
// substantive question.
func LocksQuestion(d Decision, resolved topic.Topic) bool {
	return resolved.IsSpecific() && d.Mode != ModeSimplify && d.Mode != ModeClarify
}
