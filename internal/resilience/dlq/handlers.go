package dlq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"content-pipeline/internal/domain/entity"
)

// ErrHandlerExists is returned when a stage registers a second handler.
var ErrHandlerExists = errors.New("dlq handler already registered")

// Handler re-attempts one dead letter job. The payload is whatever the
// stage stored when it gave up on the job.
type Handler func(ctx context.Context, job *entity.DeadLetterJob) error

// Registry maps stage names to their retry handlers.
// Each stage owner registers its handler at startup; the queue never needs
// to know concrete stage types.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to stage. Registering a stage twice is an error.
func (r *Registry) Register(stage string, h Handler) error {
	if stage == "" {
		return &entity.ValidationError{Field: "stage", Message: "stage name is required"}
	}
	if h == nil {
		return &entity.ValidationError{Field: "handler", Message: "handler is required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[stage]; exists {
		return fmt.Errorf("stage %q: %w", stage, ErrHandlerExists)
	}
	r.handlers[stage] = h
	return nil
}

// Lookup returns the handler for stage.
func (r *Registry) Lookup(stage string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	return h, ok
}

// Stages returns the registered stage names in sorted order.
func (r *Registry) Stages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for s := range r.handlers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
