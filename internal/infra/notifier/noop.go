package notifier

import "context"

// NoOpNotifier backs disabled channels so callers never nil-check.
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier { return &NoOpNotifier{} }

func (*NoOpNotifier) Notify(context.Context, string) error { return nil }
