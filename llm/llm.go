// Package llm declares the completion backend contract shared by the router,
// the responder and the quality gate.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/tool"
)

// ErrEmptyResponse is returned when a backend produced no message.
var ErrEmptyResponse = errors.New("llm returned no message")

// Client is a text-completion backend.
type Client interface {
	// Generate completes the conversation under the given instructions. When
	// tools are declared the reply may carry tool calls instead of text.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request bundles inputs for one completion call.
type Request struct {
	Instructions string
	Messages     []*message.Message
	Tools        []tool.Schema
}

// Response captures the backend reply.
type Response struct {
	Message *message.Message
}

// Complete sends a single user prompt and returns the reply text.
func Complete(ctx context.Context, client Client, instructions, prompt string) (string, error) {
	resp, err := client.Generate(ctx, &Request{
		Instructions: instructions,
		Messages:     []*message.Message{message.NewMessage(message.RoleUser, prompt)},
	})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Message == nil {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req *Request) (*Response, error)

// Generate implements Client.
func (f ClientFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// WithTimeout bounds every call made through client.
func WithTimeout(client Client, d time.Duration) Client {
	if d <= 0 {
		return client
	}
	return ClientFunc(func(ctx context.Context, req *Request) (*Response, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		resp, err := client.Generate(ctx, req)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("completion timed out after %s: %w", d, err)
		}
		return resp, err
	})
}
