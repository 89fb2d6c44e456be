package schedule

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/catalogfeed/iox"
	"github.com/justapithecus/catalogfeed/types"
)

// ErrNoState is returned by Load when no run state has been saved.
var ErrNoState = errors.New("no run state")

// StateStore persists the orchestrator's run state between invocations.
type StateStore interface {
	// Load returns the saved state or ErrNoState.
	Load(ctx context.Context) (*types.RunState, error)
	// Save replaces the saved state.
	Save(ctx context.Context, state *types.RunState) error
	// Clear removes the saved state. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// FileStateStore keeps run state in a msgpack file replaced atomically on save.
type FileStateStore struct {
	path string
}

// NewFileStateStore creates a store at path, creating its directory.
func NewFileStateStore(path string) (*FileStateStore, error) {
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStateStore{path: path}, nil
}

// Path returns the state file path.
func (s *FileStateStore) Path() string {
	return s.path
}

// Load implements StateStore.
func (s *FileStateStore) Load(ctx context.Context) (*types.RunState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}
	var state types.RunState
	if err := msgpack.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode run state %s: %w", s.path, err)
	}
	return &state, nil
}

// Save implements StateStore.
func (s *FileStateStore) Save(ctx context.Context, state *types.RunState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode run state: %w", err)
	}
	if err := iox.WriteFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write run state: %w", err)
	}
	return nil
}

// Clear implements StateStore.
func (s *FileStateStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove run state: %w", err)
	}
	return nil
}

// MemoryStateStore keeps run state in memory. Saved values are deep copies.
type MemoryStateStore struct {
	mu    sync.Mutex
	state []byte
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// Load implements StateStore.
func (s *MemoryStateStore) Load(_ context.Context) (*types.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, ErrNoState
	}
	var state types.RunState
	if err := msgpack.Unmarshal(s.state, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save implements StateStore.
func (s *MemoryStateStore) Save(_ context.Context, state *types.RunState) error {
	data, err := msgpack.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = data
	return nil
}

// Clear implements StateStore.
func (s *MemoryStateStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
	return nil
}

var (
	_ StateStore = (*FileStateStore)(nil)
	_ StateStore = (*MemoryStateStore)(nil)
)
