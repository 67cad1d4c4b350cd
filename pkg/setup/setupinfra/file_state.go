package setupinfra

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/fsx"
	"github.com/Abraxas-365/tenantauth/pkg/setup"
)

const stateFile = "setup_state.json"

// FileStateRepository keeps the setup state in a JSON file. It works before
// any database exists. The compare-and-set is atomic within one process.
type FileStateRepository struct {
	fs fsx.FileSystem
	mu sync.Mutex
}

func NewFileStateRepository(fs fsx.FileSystem) *FileStateRepository {
	return &FileStateRepository{fs: fs}
}

func (r *FileStateRepository) Load(ctx context.Context) (setup.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read(ctx)
}

func (r *FileStateRepository) SaveProgress(ctx context.Context, state setup.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(ctx)
	if err != nil {
		return err
	}
	if current.IsComplete {
		return setup.ErrAlreadyComplete()
	}
	state.IsComplete = false
	state.CompletedAt = nil
	return r.write(ctx, state)
}

func (r *FileStateRepository) MarkComplete(ctx context.Context, state setup.State) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read(ctx)
	if err != nil {
		return false, err
	}
	if current.IsComplete {
		return false, nil
	}
	if err := r.write(ctx, state); err != nil {
		return false, err
	}
	return true, nil
}

func (r *FileStateRepository) read(ctx context.Context) (setup.State, error) {
	data, err := r.fs.ReadFile(ctx, stateFile)
	if err != nil {
		if errors.Is(err, fsx.ErrNotExist) {
			return setup.NewState(), nil
		}
		return setup.State{}, errx.Wrap(err, "failed to read setup state", errx.TypeInternal)
	}

	var state setup.State
	if err := json.Unmarshal(data, &state); err != nil {
		return setup.State{}, errx.Wrap(err, "setup state file is corrupt", errx.TypeInternal)
	}
	if !state.CurrentStep.IsValid() {
		return setup.State{}, errx.Internal("setup state file has an unknown step").
			WithDetail("step", state.CurrentStep)
	}
	return state, nil
}

func (r *FileStateRepository) write(ctx context.Context, state setup.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errx.Wrap(err, "failed to encode setup state", errx.TypeInternal)
	}
	if err := r.fs.WriteFile(ctx, stateFile, data); err != nil {
		return errx.Wrap(err, "failed to write setup state", errx.TypeInternal)
	}
	return nil
}
