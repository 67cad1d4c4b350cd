package setupinfra

import (
	"context"
	"sync"

	"github.com/Abraxas-365/tenantauth/pkg/setup"
)

// MemoryStateRepository is a process-local state store for tests and dev runs
type MemoryStateRepository struct {
	mu    sync.Mutex
	state setup.State
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{state: setup.NewState()}
}

func (r *MemoryStateRepository) Load(_ context.Context) (setup.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, nil
}

func (r *MemoryStateRepository) SaveProgress(_ context.Context, state setup.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.IsComplete {
		return setup.ErrAlreadyComplete()
	}
	state.IsComplete = false
	state.CompletedAt = nil
	r.state = state
	return nil
}

func (r *MemoryStateRepository) MarkComplete(_ context.Context, state setup.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.IsComplete {
		return false, nil
	}
	r.state = state
	return true, nil
}
