// Package session owns the authenticated-identity record and its
// persistence across runs.
//
// The manager is the single source of truth for "who is logged in". It
// commits login results, it does not verify credentials; authentication
// is the analysis service's decision and happens before Login is called.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/avetrov/textsift/internal/errs"
	"github.com/avetrov/textsift/internal/models"
)

// Manager holds the current identity and writes it through to a single
// well-known file on every mutation. The in-memory record stays
// authoritative even when a write fails: persistence is best-effort,
// losing it costs one re-login after a restart, nothing more.
type Manager struct {
	mu       sync.Mutex
	path     string
	identity *models.Identity
	log      *zap.Logger
	validate *validator.Validate
}

// New constructs a Manager persisting to path. Call Bootstrap before
// anything else to pick up a record from a previous run.
func New(path string, logger *zap.Logger) *Manager {
	return &Manager{
		path:     path,
		log:      logger,
		validate: validator.New(),
	}
}

// Bootstrap loads the persisted identity, if any. A missing file means
// unauthenticated. A corrupt file is discarded and removed; corruption
// is a recoverable local condition and never propagates to the caller.
func (m *Manager) Bootstrap() {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("session: cannot read persisted identity", zap.Error(err))
		}
		return
	}

	var id models.Identity
	if err := json.Unmarshal(data, &id); err != nil || id.Email == "" {
		m.log.Warn("session: discarding corrupt identity record",
			zap.String("path", m.path),
			zap.Error(fmt.Errorf("%w: %v", errs.ErrCorruptState, err)))
		if rmErr := os.Remove(m.path); rmErr != nil && !os.IsNotExist(rmErr) {
			m.log.Warn("session: cannot remove corrupt record", zap.Error(rmErr))
		}
		return
	}

	m.identity = &id
}

// Login commits identity as the current user and persists it. The
// record must carry a well-formed email; everything beyond that was
// already vetted by the service.
func (m *Manager) Login(identity models.Identity) error {
	if err := m.validate.Var(identity.Email, "required,email"); err != nil {
		return fmt.Errorf("%w: identity requires a valid email", errs.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = &identity
	m.persist()
	return nil
}

// UpdateIdentity merges patch into the current identity and re-persists
// the merged record. Empty patch fields keep their current values.
// Returns ErrInvalidState when nobody is logged in.
func (m *Manager) UpdateIdentity(patch models.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil {
		return fmt.Errorf("%w: no identity to update", errs.ErrInvalidState)
	}

	merged := *m.identity
	if patch.ID != "" {
		merged.ID = patch.ID
	}
	if patch.Name != "" {
		merged.Name = patch.Name
	}
	if patch.Email != "" {
		if err := m.validate.Var(patch.Email, "email"); err != nil {
			return fmt.Errorf("%w: malformed email", errs.ErrValidation)
		}
		merged.Email = patch.Email
	}

	m.identity = &merged
	m.persist()
	return nil
}

// Logout clears the current identity and removes the persisted record.
// Calling it with no identity set is a no-op.
func (m *Manager) Logout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.identity = nil
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		m.log.Warn("session: cannot remove persisted identity", zap.Error(err))
	}
}

// Current returns a copy of the identity and whether one is set.
func (m *Manager) Current() (models.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.identity == nil {
		return models.Identity{}, false
	}
	return *m.identity, true
}

// IsAuthenticated reports whether an identity is set. There is no
// separate session lifecycle; this predicate is the session.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.Current()
	return ok
}

// persist writes the current identity to disk. Failures are logged and
// swallowed; the in-memory record remains authoritative for the rest of
// the process lifetime. Caller must hold m.mu.
func (m *Manager) persist() {
	f, err := os.Create(m.path)
	if err != nil {
		m.log.Warn("session: cannot persist identity", zap.Error(err))
		return
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(m.identity); err != nil {
		m.log.Warn("session: cannot persist identity", zap.Error(err))
	}
}
