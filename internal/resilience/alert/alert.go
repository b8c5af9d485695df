// Package alert defines the outbound notification sink used by the
// resilience layer. Delivery is best-effort: Notify never returns an error
// and implementations must not block callers on a failing channel.
package alert

import (
	"context"
	"log/slog"
)

// Sink delivers a human-readable alert text.
type Sink interface {
	Notify(ctx context.Context, text string)
}

// Nop discards every alert.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(context.Context, string) {}

// Func adapts a plain function to Sink.
type Func func(ctx context.Context, text string)

// Notify implements Sink.
func (f Func) Notify(ctx context.Context, text string) {
	f(ctx, text)
}

// Safe wraps a sink so a panicking implementation cannot take down the caller.
func Safe(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return Func(func(ctx context.Context, text string) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("alert sink panicked",
					slog.Any("panic", r))
			}
		}()
		s.Notify(ctx, text)
	})
}
