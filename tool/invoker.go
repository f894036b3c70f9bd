package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweetpotato0/studybuddy/message"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
)

// Outcome records the result of one tool call.
type Outcome struct {
	Call     message.ToolCall
	Result   string
	Err      error
	Duration time.Duration
}

// Observer is notified after each tool call completes.
type Observer func(Outcome)

// Invoker executes pending tool calls against a registry. Failures are turned
// into result text so the conversation can continue.
type Invoker struct {
	registry    *Registry
	timeout     time.Duration
	concurrency int
	observer    Observer
	logger      *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithTimeout bounds every individual tool call.
func WithTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		i.timeout = d
	}
}

// WithConcurrency sets how many calls of one batch may run at once.
func WithConcurrency(n int) InvokerOption {
	return func(i *Invoker) {
		if n > 0 {
			i.concurrency = n
		}
	}
}

// WithObserver registers a callback invoked after every call.
func WithObserver(o Observer) InvokerOption {
	return func(i *Invoker) {
		i.observer = o
	}
}

// WithInvokerLogger overrides the invoker logger.
func WithInvokerLogger(logger *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInvoker creates an invoker over registry.
func NewInvoker(registry *Registry, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		registry:    registry,
		timeout:     20 * time.Second,
		concurrency: 1,
		logger:      logging.WithComponent("tool_invoker"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke runs calls and returns one tool message per call, in request order,
// each correlated to its call by id. It never returns an error; a cancelled
// context surfaces as failure text on the calls that did not finish.
func (inv *Invoker) Invoke(ctx context.Context, calls []message.ToolCall) []*message.Message {
	results := make([]*message.Message, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inv.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			out := inv.invokeOne(gctx, call)
			results[i] = message.NewToolResponseMessage(call.ID, out.Result)
			if inv.observer != nil {
				inv.observer(out)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (inv *Invoker) invokeOne(ctx context.Context, call message.ToolCall) (out Outcome) {
	out.Call = call
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("tool panicked: %v", r)
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			out.Result = fmt.Sprintf("Error executing tool %s: %v", call.Name, out.Err)
			inv.logger.Warn("tool call failed", "tool", call.Name, "call_id", call.ID, "error", out.Err)
			return
		}
		inv.logger.Debug("tool call completed", "tool", call.Name, "call_id", call.ID, "duration", out.Duration)
	}()

	if inv.registry == nil {
		out.Err = fmt.Errorf("tool %s not found", call.Name)
		return out
	}
	if inv.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.timeout)
		defer cancel()
	}
	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	out.Result, out.Err = inv.registry.Execute(ctx, call.Name, args)
	if out.Err == nil && ctx.Err() != nil {
		out.Err = ctx.Err()
	}
	return out
}
