// Package topic defines the closed set of study subjects a turn can be routed to.
package topic

import "strings"

// Topic is a study subject.
type Topic string

const (
	None        Topic = ""
	Python      Topic = "python"
	LangGraph   Topic = "langgraph"
	LangChain   Topic = "langchain"
	JavaScript  Topic = "javascript"
	LLM         Topic = "llm"
	Automation  Topic = "automation"
	N8N         Topic = "n8n"
	GoHighLevel Topic = "gohighlevel"
	General     Topic = "general"
	Unknown     Topic = "unknown"
)

// Specific lists the subject topics in presentation order.
var Specific = []Topic{Python, LangGraph, LangChain, JavaScript, LLM, Automation, N8N, GoHighLevel}

var aliases = map[string]Topic{
	"js":           JavaScript,
	"typescript":   JavaScript,
	"ts":           JavaScript,
	"ghl":          GoHighLevel,
	"go highlevel": GoHighLevel,
	"go-highlevel": GoHighLevel,
	"lang graph":   LangGraph,
	"lang chain":   LangChain,
	"llms":         LLM,
}

// Parse case-folds s against the closed set. Anything unrecognised is Unknown.
func Parse(s string) Topic {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return Unknown
	}
	for _, t := range Specific {
		if string(t) == key {
			return t
		}
	}
	switch Topic(key) {
	case General:
		return General
	case Unknown:
		return Unknown
	}
	if t, ok := aliases[key]; ok {
		return t
	}
	return Unknown
}

// ParseSubject parses a subject supplied by a user or tool. Unlike Parse it
// reports whether the value named a real subject, and maps misses to General.
func ParseSubject(s string) (Topic, bool) {
	t := Parse(s)
	switch t {
	case Unknown:
		return General, false
	case General:
		return General, true
	}
	return t, true
}

// IsSpecific reports whether t is one of the subject topics rather than the
// generic or unknown placeholders.
func (t Topic) IsSpecific() bool {
	switch t {
	case None, General, Unknown:
		return false
	}
	return true
}

// IsSet reports whether a topic lock exists.
func (t Topic) IsSet() bool {
	return t != None && t != Unknown
}

func (t Topic) String() string {
	if t == None {
		return "none"
	}
	return string(t)
}

// Names returns the string form of ts.
func Names(ts []Topic) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

// Set is a membership set of topics.
type Set map[Topic]struct{}

// NewSet builds a set from raw names, dropping anything outside the closed set.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		if t := Parse(n); t.IsSpecific() || t == General {
			s[t] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(t Topic) bool {
	_, ok := s[t]
	return ok
}
