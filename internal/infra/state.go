package infra

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/harborview/guestchat/internal/repository"
)

// FileStateRepository persists chat state as one JSON document per key under
// a state directory. Missing files load as empty values so a fresh install
// starts cleanly.
type FileStateRepository struct {
	dir string
}

// NewFileStateRepository creates a file-backed state repository rooted at dir.
func NewFileStateRepository(dir string) *FileStateRepository {
	return &FileStateRepository{dir: dir}
}

// DefaultStateDir returns ~/.guestchat/state, falling back to a relative
// .guestchat/state when the home directory cannot be determined.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".guestchat", "state")
	}
	return filepath.Join(home, ".guestchat", "state")
}

func (fr *FileStateRepository) path(key string) string {
	return filepath.Join(fr.dir, key+".json")
}

// load unmarshals the document for key into out. A missing file leaves out
// untouched and returns false; a malformed file returns an error so the
// caller can fall back to defaults.
func (fr *FileStateRepository) load(key string, out any) (bool, error) {
	data, err := os.ReadFile(fr.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to read state %s", key)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrapf(err, "failed to decode state %s", key)
	}
	return true, nil
}

func (fr *FileStateRepository) save(key string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode state %s", key)
	}
	if err := os.MkdirAll(fr.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create state directory %s", fr.dir)
	}
	if err := os.WriteFile(fr.path(key), data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write state %s", key)
	}
	return nil
}

func (fr *FileStateRepository) LoadMessages() ([]repository.MessageRecord, error) {
	var records []repository.MessageRecord
	if _, err := fr.load(repository.KeyMessages, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (fr *FileStateRepository) SaveMessages(records []repository.MessageRecord) error {
	if records == nil {
		records = []repository.MessageRecord{}
	}
	return fr.save(repository.KeyMessages, records)
}

func (fr *FileStateRepository) LoadOutbox() ([]repository.OutboxRecord, error) {
	var records []repository.OutboxRecord
	if _, err := fr.load(repository.KeyOutbox, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (fr *FileStateRepository) SaveOutbox(records []repository.OutboxRecord) error {
	if records == nil {
		records = []repository.OutboxRecord{}
	}
	return fr.save(repository.KeyOutbox, records)
}

func (fr *FileStateRepository) LoadActiveAgent() (string, error) {
	var id string
	if _, err := fr.load(repository.KeyActiveAgent, &id); err != nil {
		return "", err
	}
	return id, nil
}

func (fr *FileStateRepository) SaveActiveAgent(id string) error {
	return fr.save(repository.KeyActiveAgent, id)
}

func (fr *FileStateRepository) Clear() error {
	for _, key := range []string{repository.KeyMessages, repository.KeyOutbox, repository.KeyActiveAgent} {
		if err := os.Remove(fr.path(key)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to clear state %s", key)
		}
	}
	return nil
}

// MemoryStateRepository is an in-memory StateRepository for tests and
// ephemeral runs.
type MemoryStateRepository struct {
	mu          sync.Mutex
	messages    []repository.MessageRecord
	outbox      []repository.OutboxRecord
	activeAgent string

	// FailWrites makes every save return an error, for exercising the
	// best-effort persistence path.
	FailWrites bool
}

// NewMemoryStateRepository creates an empty in-memory state repository.
func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{}
}

func (mr *MemoryStateRepository) LoadMessages() ([]repository.MessageRecord, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return append([]repository.MessageRecord(nil), mr.messages...), nil
}

func (mr *MemoryStateRepository) SaveMessages(records []repository.MessageRecord) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if mr.FailWrites {
		return errors.New("memory repository writes disabled")
	}
	mr.messages = append([]repository.MessageRecord(nil), records...)
	return nil
}

func (mr *MemoryStateRepository) LoadOutbox() ([]repository.OutboxRecord, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return append([]repository.OutboxRecord(nil), mr.outbox...), nil
}

func (mr *MemoryStateRepository) SaveOutbox(records []repository.OutboxRecord) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if mr.FailWrites {
		return errors.New("memory repository writes disabled")
	}
	mr.outbox = append([]repository.OutboxRecord(nil), records...)
	return nil
}

func (mr *MemoryStateRepository) LoadActiveAgent() (string, error) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.activeAgent, nil
}

func (mr *MemoryStateRepository) SaveActiveAgent(id string) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if mr.FailWrites {
		return errors.New("memory repository writes disabled")
	}
	mr.activeAgent = id
	return nil
}

func (mr *MemoryStateRepository) Clear() error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.messages = nil
	mr.outbox = nil
	mr.activeAgent = ""
	return nil
}
