package session

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const sessionFileName = "session.id"

// Provider hands out a stable per-installation session id. The id is created
// lazily on first use and persisted next to the chat state, so the same id is
// reused across restarts until the session is reset.
type Provider struct {
	mu  sync.Mutex
	dir string
	id  string
}

// NewProvider creates a session provider storing its id under dir.
func NewProvider(dir string) *Provider {
	return &Provider{dir: dir}
}

// EnsureSession returns the current session id, minting and persisting a new
// one when none exists yet. Repeated calls return the same id.
func (p *Provider) EnsureSession() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	path := filepath.Join(p.dir, sessionFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			p.id = id
			return p.id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", errors.Wrap(err, "failed to read session file")
	}

	id := uuid.NewString()
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create session directory")
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", errors.Wrap(err, "failed to write session file")
	}
	p.id = id
	return p.id, nil
}

// Clear forgets the current session id so the next EnsureSession mints a
// fresh one.
func (p *Provider) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.id = ""
	path := filepath.Join(p.dir, sessionFileName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove session file")
	}
	return nil
}
