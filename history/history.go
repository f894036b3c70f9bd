// Package history models conversation history as an append-only log and
// selects the window of it that is sent to a completion backend.
package history

import (
	"sync"
	"unicode/utf8"

	"github.com/sweetpotato0/studybuddy/message"
)

// History is an append-only, concurrency-safe message log. Writers can only
// add to the end; there is no way to replace or remove an entry.
type History struct {
	mu   sync.RWMutex
	msgs []*message.Message
}

// New returns a history seeded with msgs.
func New(msgs ...*message.Message) *History {
	h := &History{}
	h.Append(msgs...)
	return h
}

// Append adds msgs, in order, after the existing entries. Nil messages are skipped.
func (h *History) Append(msgs ...*message.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		if m != nil {
			h.msgs = append(h.msgs, m)
		}
	}
}

// Messages returns a snapshot of the log.
func (h *History) Messages() []*message.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*message.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Merge concatenates base with each delta. It is the only way two histories
// are combined, so no message is ever dropped.
func Merge(base []*message.Message, deltas ...[]*message.Message) []*message.Message {
	n := len(base)
	for _, d := range deltas {
		n += len(d)
	}
	out := make([]*message.Message, 0, n)
	out = append(out, base...)
	for _, d := range deltas {
		out = append(out, d...)
	}
	return out
}

// Counter counts tokens in text.
type Counter interface {
	CountTokens(text string) int
}

// ApproxCounter estimates four characters per token.
type ApproxCounter struct{}

// CountTokens implements Counter.
func (ApproxCounter) CountTokens(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// perMessageOverhead approximates role and framing tokens.
const perMessageOverhead = 4

// minToolTokens is the smallest share a tool result is cut down to.
const minToolTokens = 32

// TruncatedMarker ends a tool result that was shortened to fit the window.
const TruncatedMarker = "\n...[truncated]"

// Window returns the part of msgs sent to a backend within budget tokens.
// The current turn, from the newest user message onward, is always kept whole
// so that tool results stay behind the assistant message that requested them.
// When the turn alone is over budget, its tool results are shortened instead.
// Older messages are added newest first while they fit, and the window never
// begins with a tool result.
func Window(msgs []*message.Message, budget int, counter Counter) []*message.Message {
	if len(msgs) == 0 {
		return nil
	}
	if counter == nil {
		counter = ApproxCounter{}
	}
	if budget <= 0 {
		return msgs
	}

	anchor := turnStart(msgs)
	turn := fitTurn(msgs[anchor:], budget, counter)
	used := 0
	for _, m := range turn {
		used += cost(m, counter)
	}

	start := anchor
	for i := anchor - 1; i >= 0; i-- {
		c := cost(msgs[i], counter)
		if used+c > budget {
			break
		}
		used += c
		start = i
	}
	for start < anchor && msgs[start].Role == message.RoleTool {
		start++
	}

	out := make([]*message.Message, 0, anchor-start+len(turn))
	out = append(out, msgs[start:anchor]...)
	return append(out, turn...)
}

// turnStart returns the index of the newest user message, or of the newest
// message when there is none.
func turnStart(msgs []*message.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == message.RoleUser {
			return i
		}
	}
	return len(msgs) - 1
}

// fitTurn shortens the tool results of turn until it fits budget. Other
// messages are never cut. Shortened results are copies.
func fitTurn(turn []*message.Message, budget int, counter Counter) []*message.Message {
	total, fixed, tools := 0, 0, 0
	for _, m := range turn {
		c := cost(m, counter)
		total += c
		if m.Role == message.RoleTool {
			tools++
			fixed += perMessageOverhead
		} else {
			fixed += c
		}
	}
	if total <= budget || tools == 0 {
		return turn
	}

	share := (budget - fixed) / tools
	if share < minToolTokens {
		share = minToolTokens
	}
	out := make([]*message.Message, len(turn))
	copy(out, turn)
	for i, m := range out {
		if m.Role != message.RoleTool || counter.CountTokens(m.Content) <= share {
			continue
		}
		cut := message.Clone(m)
		cut.Content = truncateTokens(m.Content, share-counter.CountTokens(TruncatedMarker), counter) + TruncatedMarker
		out[i] = cut
	}
	return out
}

// truncateTokens returns the longest rune prefix of s counting at most limit tokens.
func truncateTokens(s string, limit int, counter Counter) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.CountTokens(string(runes[:mid])) <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}

func cost(m *message.Message, counter Counter) int {
	n := perMessageOverhead + counter.CountTokens(m.Content)
	for _, call := range m.ToolCalls {
		n += counter.CountTokens(call.Name) + perMessageOverhead
		for k, v := range call.Args {
			if s, ok := v.(string); ok {
				n += counter.CountTokens(k) + counter.CountTokens(s)
			}
		}
	}
	return n
}
