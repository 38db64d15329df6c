package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"token-call-tracker/internal/domain"
	"token-call-tracker/internal/storage"
)

// fileEntry is the on-disk form of a dead letter entry.
type fileEntry struct {
	ID         string `json:"id"`
	PositionID int64  `json:"position_id"`
	Chain      string `json:"chain"`
	Address    string `json:"address"`
	Class      string `json:"error_class"`
	Reason     string `json:"error"`
	RunID      string `json:"run_id,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	RetryCount int    `json:"retry_count"`
}

// FileStore keeps dead letters in a JSON file. Every write replaces the
// file atomically, so a crash never leaves it half written.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Compile-time interface check.
var _ storage.DeadLetterStore = (*FileStore)(nil)

// Put inserts an entry or replaces the one with the same ID.
func (s *FileStore) Put(_ context.Context, e *domain.DeadLetterEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range entries {
		if entries[i].ID == e.ID {
			entries[i] = toFile(e)
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, toFile(e))
	}
	return s.save(entries)
}

// List retrieves all entries in file order.
func (s *FileStore) List(_ context.Context) ([]*domain.DeadLetterEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.DeadLetterEntry, len(entries))
	for i, e := range entries {
		out[i] = fromFile(e)
	}
	return out, nil
}

// Delete removes an entry. Returns ErrNotFound if not exists.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	for i := range entries {
		if entries[i].ID == id {
			return s.save(append(entries[:i], entries[i+1:]...))
		}
	}
	return storage.ErrNotFound
}

// Clear removes all entries and returns how many were removed.
func (s *FileStore) Clear(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := s.save(nil); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *FileStore) load() ([]fileEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dead letter file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []fileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode dead letter file %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileStore) save(entries []fileEntry) error {
	if entries == nil {
		entries = []fileEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dead letter file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dead letter dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dead-letter-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write dead letter file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close dead letter file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace dead letter file: %w", err)
	}
	return nil
}

func toFile(e *domain.DeadLetterEntry) fileEntry {
	return fileEntry{
		ID:         e.ID,
		PositionID: e.PositionID,
		Chain:      string(e.Token.Chain),
		Address:    e.Token.Address,
		Class:      e.Class,
		Reason:     e.Reason,
		RunID:      e.RunID,
		Timestamp:  e.Timestamp,
		RetryCount: e.RetryCount,
	}
}

func fromFile(e fileEntry) *domain.DeadLetterEntry {
	return &domain.DeadLetterEntry{
		ID:         e.ID,
		PositionID: e.PositionID,
		Token:      domain.TokenKey{Chain: domain.Chain(e.Chain), Address: e.Address},
		Class:      e.Class,
		Reason:     e.Reason,
		RunID:      e.RunID,
		Timestamp:  e.Timestamp,
		RetryCount: e.RetryCount,
	}
}
