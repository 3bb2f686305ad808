package session

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/pricewatch/internal/models"
	"github.com/desertthunder/pricewatch/internal/tokenstore"
)

// State is the coarse authentication state.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// UserResolver fetches the user that owns token, typically via GET /auth/me.
type UserResolver func(ctx context.Context, token string) (*models.User, error)

// Hooks are fired after a transition completes, outside the manager's lock.
type Hooks struct {
	// DismissPrompt fires after a successful Login.
	DismissPrompt func()
	// ResetNavigation fires after Logout.
	ResetNavigation func()
}

// Snapshot is a consistent copy of the session.
type Snapshot struct {
	User          *models.User
	Token         string
	Authenticated bool
	State         State
	Generation    uint64
}

// Manager is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	store    tokenstore.Store
	logger   *log.Logger
	hooks    Hooks
	user     *models.User
	token    string
	resolved bool
	gen      uint64
	rejected string // last token cleared by Expire
}

// Option configures a [Manager].
type Option func(*Manager)

// WithHooks sets the transition hooks.
func WithHooks(h Hooks) Option {
	return func(m *Manager) { m.hooks = h }
}

// WithLogger sets the logger used for storage and rehydration failures.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates an empty session in [StateUnknown] backed by store.
func NewManager(store tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{store: store, logger: log.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetHooks replaces the transition hooks. The TUI installs its own after startup.
func (m *Manager) SetHooks(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = h
}

// Login installs user and token and persists both.
//
// Storage failures are logged; the in-memory session is updated regardless.
func (m *Manager) Login(user *models.User, token string) {
	m.mu.Lock()
	m.gen++
	m.user = copyUser(user)
	m.token = token
	m.resolved = true

	if err := m.store.Save(token); err != nil {
		m.logger.Error("failed to persist token", "error", err)
	}
	if err := m.store.SaveUser(user); err != nil {
		m.logger.Error("failed to persist user snapshot", "error", err)
	}
	hook := m.hooks.DismissPrompt
	m.mu.Unlock()

	m.logger.Debug("session started", "user", user.DisplayName())
	if hook != nil {
		hook()
	}
}

// Logout clears the session and the store. In-flight requests are not cancelled,
// but their results can no longer change the session.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.gen++
	m.user = nil
	m.token = ""
	m.resolved = true

	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear token store", "error", err)
	}
	hook := m.hooks.ResetNavigation
	m.mu.Unlock()

	m.logger.Debug("session ended")
	if hook != nil {
		hook()
	}
}

// Rehydrate restores a persisted session. If the store holds a token, resolve is called
// with it; on success the session becomes authenticated, on any failure the store is
// cleared and the session stays anonymous. Failures are logged, not returned.
//
// Rehydrate reports whether it produced an authenticated session. A result that arrives
// after a newer Login, Logout or Expire is discarded.
func (m *Manager) Rehydrate(ctx context.Context, resolve UserResolver) bool {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	token, ok := m.store.Load()
	if !ok {
		m.mu.Lock()
		if m.gen == gen {
			m.resolved = true
		}
		m.mu.Unlock()
		m.logger.Debug("no stored session")
		return false
	}

	user, err := resolve(ctx, token)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.gen != gen {
		if m.rejected == token {
			m.logger.Warn("stored session rejected", "error", err)
		} else {
			m.logger.Debug("discarding stale rehydration", "started", gen, "current", m.gen)
		}
		return false
	}
	m.gen++
	m.resolved = true

	if err != nil || user == nil {
		m.user = nil
		m.token = ""
		if cerr := m.store.Clear(); cerr != nil {
			m.logger.Error("failed to clear token store", "error", cerr)
		}
		m.logger.Warn("stored session rejected", "error", err)
		return false
	}

	m.user = copyUser(user)
	m.token = token
	if err := m.store.SaveUser(user); err != nil {
		m.logger.Error("failed to persist user snapshot", "error", err)
	}
	m.logger.Info("rehydrated session", "user", user.DisplayName())
	return true
}

// Expire demotes the session after the server rejected token. The demotion applies only
// when token is the one currently in use, so a late rejection of an older token leaves a
// newer login alone. An empty token was never attached to a request and clears nothing.
// It reports whether anything was cleared.
func (m *Manager) Expire(token string) bool {
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.token
	if current == "" {
		current, _ = m.store.Load()
	}
	if current != "" && token != current {
		m.logger.Debug("ignoring rejection of a superseded token")
		return false
	}

	m.gen++
	m.user = nil
	m.token = ""
	m.rejected = token
	m.resolved = true
	if err := m.store.Clear(); err != nil {
		m.logger.Error("failed to clear token store", "error", err)
	}
	m.logger.Warn("session expired")
	return true
}

// State reports the current [State].
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	switch {
	case m.user != nil:
		return StateAuthenticated
	case m.resolved:
		return StateAnonymous
	default:
		return StateUnknown
	}
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// User returns a copy of the signed-in user, or nil.
func (m *Manager) User() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyUser(m.user)
}

// Token returns the in-memory bearer token, or "".
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// Snapshot returns the whole session at one instant.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		User:          copyUser(m.user),
		Token:         m.token,
		Authenticated: m.user != nil,
		State:         m.stateLocked(),
		Generation:    m.gen,
	}
}

// Store returns the backing token store.
func (m *Manager) Store() tokenstore.Store {
	return m.store
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
