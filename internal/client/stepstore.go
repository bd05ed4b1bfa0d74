package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MarcinMove37ai/vodmatch-sub001/internal/step"
)

// StepStore persists the displayed step per (session code, user id) so a
// reload resumes at the correct step without waiting for a fresh push.
type StepStore interface {
	Get(code, userID string) (step.Step, bool)
	Set(code, userID string, st step.Step) error
	Clear(code, userID string) error
}

func stepKey(code, userID string) string {
	return code + "/" + userID
}

// MemoryStepStore keeps displayed steps in memory only.
type MemoryStepStore struct {
	mu    sync.RWMutex
	steps map[string]step.Step
}

// NewMemoryStepStore creates an empty in-memory step store.
func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[string]step.Step)}
}

func (m *MemoryStepStore) Get(code, userID string) (step.Step, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.steps[stepKey(code, userID)]
	return st, ok
}

func (m *MemoryStepStore) Set(code, userID string, st step.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps[stepKey(code, userID)] = st
	return nil
}

func (m *MemoryStepStore) Clear(code, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.steps, stepKey(code, userID))
	return nil
}

// FileStepStore persists displayed steps to a JSON file, the device-local
// equivalent of browser storage.
type FileStepStore struct {
	mu    sync.Mutex
	path  string
	steps map[string]step.Step
}

// NewFileStepStore loads (or initializes) a file-backed step store.
func NewFileStepStore(path string) (*FileStepStore, error) {
	s := &FileStepStore{path: path, steps: make(map[string]step.Step)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read step store: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.steps); err != nil {
			return nil, fmt.Errorf("parse step store: %w", err)
		}
	}
	return s, nil
}

func (f *FileStepStore) Get(code, userID string) (step.Step, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.steps[stepKey(code, userID)]
	return st, ok
}

func (f *FileStepStore) Set(code, userID string, st step.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[stepKey(code, userID)] = st
	return f.persistLocked()
}

func (f *FileStepStore) Clear(code, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.steps, stepKey(code, userID))
	return f.persistLocked()
}

// persistLocked writes atomically via a temp file rename. Caller holds f.mu.
func (f *FileStepStore) persistLocked() error {
	data, err := json.Marshal(f.steps)
	if err != nil {
		return fmt.Errorf("marshal step store: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create step store dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write step store: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace step store: %w", err)
	}
	return nil
}
