package dashboard

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nerrad567/loxhome-core/internal/localstore"
	"github.com/nerrad567/loxhome-core/internal/state"
)

const (
	// RemoteKey is the backend user-data key holding the config.
	RemoteKey = "loxhome"

	// LocalKey is the local storage slot caching the config.
	LocalKey = "loxhome-config"
)

// Remote is the backend's per-user storage. hass.Manager implements it.
type Remote interface {
	GetUserData(ctx context.Context, key string) (json.RawMessage, error)
	SetUserData(ctx context.Context, key string, value any) error
}

// Logger defines the logging interface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store persists the dashboard config: the backend is primary, local
// storage is the cache and fallback. The current config is published on an
// observable store.
//
// Load and Save never fail. Persistence problems are logged and degrade to
// the next tier.
type Store struct {
	remote  Remote
	local   localstore.Storage
	current *state.Store[Config]
	logger  Logger
}

// NewStore creates a store publishing Default until the first Load or Save.
// Either tier may be nil.
func NewStore(remote Remote, local localstore.Storage) *Store {
	return &Store{
		remote:  remote,
		local:   local,
		current: state.New(Default()),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Config publishes the current dashboard config. Subscribers must treat
// the value as read-only; use Clone before editing.
func (s *Store) Config() *state.Store[Config] {
	return s.current
}

// Load resolves the config and publishes it.
//
// Order: backend user data (also refreshes the local cache), then the local
// cache, then Default. A backend error, a document that does not decode or
// an empty value moves on to the next tier. Decoded documents are used as
// stored, so whatever Save wrote is what Load returns.
func (s *Store) Load(ctx context.Context) Config {
	if cfg, ok := s.loadRemote(ctx); ok {
		s.current.Set(cfg)
		s.writeLocal(ctx, cfg)
		s.logger.Info("dashboard config loaded", "source", "backend", "views", len(cfg.Views))
		return cfg
	}

	if cfg, ok := s.loadLocal(ctx); ok {
		s.current.Set(cfg)
		s.logger.Info("dashboard config loaded", "source", "local", "views", len(cfg.Views))
		return cfg
	}

	cfg := Default()
	s.current.Set(cfg)
	s.logger.Info("dashboard config loaded", "source", "default")
	return cfg
}

// Save publishes cfg immediately, then writes it to the backend and to the
// local cache. Write failures are logged; the published value stays.
func (s *Store) Save(ctx context.Context, cfg Config) {
	cfg = cfg.normalize()
	s.current.Set(cfg)

	if s.remote != nil {
		if err := s.remote.SetUserData(ctx, RemoteKey, cfg); err != nil {
			s.logger.Warn("saving dashboard config to backend failed", "error", err)
		}
	}
	s.writeLocal(ctx, cfg)
}

func (s *Store) loadRemote(ctx context.Context) (Config, bool) {
	if s.remote == nil {
		return Config{}, false
	}
	raw, err := s.remote.GetUserData(ctx, RemoteKey)
	if err != nil {
		s.logger.Warn("loading dashboard config from backend failed", "error", err)
		return Config{}, false
	}
	cfg, err := DecodeJSON(raw)
	if err != nil {
		s.logger.Warn("ignoring malformed dashboard config from backend", "error", err)
		return Config{}, false
	}
	return cfg, true
}

func (s *Store) loadLocal(ctx context.Context) (Config, bool) {
	if s.local == nil {
		return Config{}, false
	}
	raw, err := s.local.GetItem(ctx, LocalKey)
	if errors.Is(err, localstore.ErrNotFound) {
		return Config{}, false
	}
	if err != nil {
		s.logger.Warn("reading cached dashboard config failed", "error", err)
		return Config{}, false
	}
	cfg, err := DecodeJSON([]byte(raw))
	if err != nil {
		s.logger.Warn("ignoring malformed cached dashboard config", "error", err)
		return Config{}, false
	}
	return cfg, true
}

func (s *Store) writeLocal(ctx context.Context, cfg Config) {
	if s.local == nil {
		return
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		s.logger.Error("encoding dashboard config failed", "error", err)
		return
	}
	if err := s.local.SetItem(ctx, LocalKey, string(data)); err != nil {
		s.logger.Warn("caching dashboard config locally failed", "error", err)
	}
}
