package worker

import (
	"context"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
)

// Handle is the completion future of one submitted run.
type Handle struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result *models.ExecutionResult
	err    error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// CompletedHandle returns a handle that is already resolved, used for inline runs.
func CompletedHandle(id string, result *models.ExecutionResult, err error) *Handle {
	h := newHandle(id)
	h.complete(result, err)

	return h
}

func (h *Handle) complete(result *models.ExecutionResult, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// ID returns the identifier the run was submitted with.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed once the run has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes or ctx ends. A ctx error does not affect the run.
func (h *Handle) Wait(ctx context.Context) (*models.ExecutionResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
