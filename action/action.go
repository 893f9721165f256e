package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Handler is the dispatch contract for action steps. Execute receives the
// step's resolved parameters and a read-only snapshot of the target
// entity, and returns result data recorded in the enrollment history.
// Handlers must be idempotent: delivery is at-least-once.
type Handler interface {
	Name() string
	Execute(ctx context.Context, params map[string]any, entity map[string]any) (map[string]any, error)
}

// TransientError marks a retryable failure: network timeout, rate limit.
type TransientError struct {
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient action error: %v", e.Err)
}

func (e TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a non-retryable failure: validation error, missing
// required field. It fails the enrollment immediately.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	return fmt.Sprintf("permanent action error: %v", e.Err)
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

func Transient(err error) error {
	return TransientError{Err: err}
}

func Permanent(err error) error {
	return PermanentError{Err: err}
}

func Permanentf(format string, args ...any) error {
	return PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsTransient classifies an action error. Unclassified errors and context
// deadline hits count as transient: retrying is the safe default for an
// external call of unknown outcome.
func IsTransient(err error) bool {
	var perm PermanentError
	return !errors.As(err, &perm)
}

type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("no action handler registered for %q", name)
	}
	return h, nil
}
