// Package middleware wraps the processing of one conversational turn in a
// chain of interceptors.
package middleware

import (
	"context"

	"github.com/sweetpotato0/studybuddy/message"
)

// Context represents the middleware execution context for one turn.
type Context struct {
	// SessionKey identifies the conversation.
	SessionKey string

	// Input is the raw user utterance.
	Input string

	// Response is the reply produced by the final handler.
	Response *message.Message

	// Metadata passes data between middlewares.
	Metadata map[string]any

	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context, sessionKey, input string) *Context {
	return &Context{
		SessionKey: sessionKey,
		Input:      input,
		Metadata:   make(map[string]any),
		context:    ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Middleware intercepts a turn. Returning an error stops the chain.
type Middleware interface {
	// Name returns the name of the middleware for logging and debugging
	Name() string

	// Execute runs the middleware logic and calls next to continue.
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// Chain represents a sequence of middleware to be executed
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Add appends a middleware to the chain
func (c *Chain) Add(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Len returns the number of middlewares.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain, then finalHandler.
func (c *Chain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *Chain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}
	next := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}
	return c.middlewares[index].Execute(ctx, next)
}

// Func adapts a function to Middleware.
type Func struct {
	name string
	fn   func(*Context, Handler) error
}

// NewFunc wraps fn as a named middleware.
func NewFunc(name string, fn func(*Context, Handler) error) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the middleware name
func (f *Func) Name() string {
	return f.name
}

// Execute calls the wrapped function.
func (f *Func) Execute(ctx *Context, next Handler) error {
	return f.fn(ctx, next)
}
