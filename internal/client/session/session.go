// Package session owns the lifetime of a logged-in sync engine. Each Session
// holds exactly one engine together with the store and workspace lock it
// runs on; there is no process-wide registry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/openmined/trackd/internal/client/access"
	"github.com/openmined/trackd/internal/client/background"
	"github.com/openmined/trackd/internal/client/config"
	"github.com/openmined/trackd/internal/client/datasource"
	"github.com/openmined/trackd/internal/client/store"
	"github.com/openmined/trackd/internal/client/workspace"
	"github.com/openmined/trackd/internal/db"
	"github.com/openmined/trackd/internal/models"
	"github.com/openmined/trackd/internal/trackapi"
	"github.com/openmined/trackd/internal/version"
)

var (
	ErrNotLoggedIn = errors.New("not logged in")
)

type Option func(*Manager)

// WithClock replaces the wall clock used by the background trigger
func WithClock(clock background.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// Manager creates sessions from credentials or from a previous login
type Manager struct {
	cfg   *config.Config
	clock background.Clock
}

func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:   cfg,
		clock: background.SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Login authenticates against the server, persists the api token and returns
// a running session. A successful login lifts any recorded access restriction.
func (m *Manager) Login(ctx context.Context, email string, password string) (*Session, error) {
	user, err := trackapi.Login(ctx, m.cfg.ServerURL, email, password)
	if err != nil {
		return nil, err
	}
	if user.APIToken == "" {
		return nil, fmt.Errorf("login: server returned no api token for %s", email)
	}

	ws, st, err := m.openWorkspace()
	if err != nil {
		return nil, err
	}

	accessStorage := access.NewStorage(st.DeviceSettings, version.Version)
	if err := m.prepareStore(ctx, st, accessStorage, *user); err != nil {
		closeAll(st, ws)
		return nil, err
	}

	m.cfg.Email = user.Email
	m.cfg.APIToken = user.APIToken
	if err := m.cfg.Save(); err != nil {
		closeAll(st, ws)
		return nil, fmt.Errorf("save credentials: %w", err)
	}

	slog.Info("logged in", "email", user.Email, "user", user.ID)
	return m.start(ws, st, accessStorage)
}

// Restore resumes the session of a previous login. It refuses when no api token
// is saved or when an access restriction applies to the saved one.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	if !m.cfg.HasCredentials() {
		return nil, ErrNotLoggedIn
	}

	ws, st, err := m.openWorkspace()
	if err != nil {
		return nil, err
	}

	accessStorage := access.NewStorage(st.DeviceSettings, version.Version)
	if err := accessStorage.Check(ctx, m.cfg.APIToken); err != nil {
		closeAll(st, ws)
		return nil, err
	}

	return m.start(ws, st, accessStorage)
}

// Logout ends the saved session. A session refused by an access restriction
// cannot be restored, so its local data is wiped without starting an engine.
func (m *Manager) Logout(ctx context.Context) error {
	s, err := m.Restore(ctx)
	if err == nil {
		return s.Logout(ctx)
	}
	if !access.IsRestricted(err) {
		return err
	}

	slog.Info("logging out restricted session", "reason", err)
	ws, st, err := m.openWorkspace()
	if err != nil {
		return err
	}
	if err := st.Clear(ctx); err != nil {
		closeAll(st, ws)
		return fmt.Errorf("logout: %w", err)
	}
	if err := closeAll(st, ws); err != nil {
		return err
	}

	m.cfg.ClearCredentials()
	return m.cfg.Save()
}

func (m *Manager) openWorkspace() (*workspace.Workspace, *store.Store, error) {
	ws, err := workspace.NewWorkspace(m.cfg.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(db.WithPath(ws.DBPath))
	if err != nil {
		closeAll(nil, ws)
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return ws, st, nil
}

// prepareStore drops data left behind by a different user and seeds the
// logged in user record.
func (m *Manager) prepareStore(ctx context.Context, st *store.Store, accessStorage *access.Storage, user models.User) error {
	existing, err := st.Users.GetAll(ctx, func(u models.User) bool { return u.ID != user.ID })
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		slog.Info("clearing data of previous user", "user", existing[0].ID)
		if err := st.Clear(ctx); err != nil {
			return err
		}
	}

	if err := accessStorage.Reset(ctx); err != nil {
		return fmt.Errorf("reset access restrictions: %w", err)
	}

	return st.Users.Upsert(ctx, user.WithSync(models.InSync()))
}

func (m *Manager) start(ws *workspace.Workspace, st *store.Store, accessStorage *access.Storage) (*Session, error) {
	api, err := trackapi.New(&trackapi.Config{
		BaseURL:  m.cfg.ServerURL,
		APIToken: m.cfg.APIToken,
	})
	if err != nil {
		closeAll(st, ws)
		return nil, err
	}

	trigger, err := background.NewService(m.clock, m.cfg.BackgroundSyncThreshold)
	if err != nil {
		closeAll(st, ws)
		return nil, err
	}

	engine, err := datasource.NewEngine(st, api, trigger, access.NewErrorHandler(accessStorage, m.cfg.APIToken))
	if err != nil {
		trigger.Close()
		closeAll(st, ws)
		return nil, err
	}

	s := &Session{
		ID:         uuid.New().String(),
		cfg:        m.cfg,
		workspace:  ws,
		store:      st,
		access:     accessStorage,
		background: trigger,
		engine:     engine,
	}
	slog.Debug("session started", "session", s.ID, "root", ws.Root)
	return s, nil
}

// Session is one logged in engine instance
type Session struct {
	ID string

	cfg        *config.Config
	workspace  *workspace.Workspace
	store      *store.Store
	access     *access.Storage
	background *background.Service
	engine     *datasource.Engine

	closeOnce sync.Once
	closeErr  error
}

func (s *Session) DataSource() *datasource.DataSource {
	return s.engine.DataSource
}

func (s *Session) Engine() *datasource.Engine {
	return s.engine
}

// Background is the lifecycle trigger that starts syncs on return to foreground
func (s *Session) Background() *background.Service {
	return s.background
}

func (s *Session) Email() string {
	return s.cfg.Email
}

func (s *Session) Workspace() *workspace.Workspace {
	return s.workspace
}

// Logout stops syncing, wipes the local data and forgets the credentials.
// The session is closed afterwards.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.engine.DataSource.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}

	s.cfg.ClearCredentials()
	if err := s.cfg.Save(); err != nil {
		return fmt.Errorf("logout: forget credentials: %w", err)
	}

	slog.Info("logged out", "session", s.ID)
	return s.Close()
}

// Close stops the engine and releases the store and workspace lock
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.engine.Close()
		s.background.Close()
		s.closeErr = closeAll(s.store, s.workspace)
		slog.Debug("session closed", "session", s.ID)
	})
	return s.closeErr
}

func closeAll(st *store.Store, ws *workspace.Workspace) error {
	var errs []error
	if st != nil {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if ws != nil {
		if err := ws.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
