package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/loxhome-core/internal/discovery"
	"github.com/nerrad567/loxhome-core/internal/handshake"
	"github.com/nerrad567/loxhome-core/internal/state"
)

// Manager owns the single backend connection.
//
// Every component that talks to the backend goes through a Manager. It
// publishes the connection flag, the live entity states and the active
// credential as observable stores.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - At most one Connect* call runs at a time; others fail with
//     ErrConnectInProgress.
//   - Store subscribers must not call Connect* or Disconnect synchronously.
type Manager struct {
	dialer           Dialer
	interactive      InteractiveAuth
	handshakeTimeout time.Duration
	logger           Logger

	// pushMu is held while a push is published, so a Disconnect that
	// returns has also stopped deliveries from the old connection.
	// Lock order: pushMu before mu.
	pushMu sync.Mutex

	mu         sync.Mutex
	conn       Conn
	connecting bool

	// generation changes whenever the current connection is replaced or
	// dropped. Pushes and loss notifications carry the generation they
	// were started under and are ignored once it is stale.
	generation atomic.Uint64

	connected  *state.Store[bool]
	states     *state.Store[States]
	credential *state.Store[*handshake.Credential]
}

// NewManager creates a manager that opens connections with dialer.
func NewManager(dialer Dialer) *Manager {
	return &Manager{
		dialer:     dialer,
		logger:     noopLogger{},
		connected:  state.New(false),
		states:     state.New(States{}),
		credential: state.New[*handshake.Credential](nil),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetInteractiveAuth sets the collaborator used by ConnectInteractive.
func (m *Manager) SetInteractiveAuth(auth InteractiveAuth) {
	m.interactive = auth
}

// SetHandshakeTimeout overrides handshake.DefaultTimeout for ConnectAsPanel.
func (m *Manager) SetHandshakeTimeout(d time.Duration) {
	m.handshakeTimeout = d
}

// Connected publishes whether a backend connection is live.
func (m *Manager) Connected() *state.Store[bool] { return m.connected }

// States publishes the full entity state map.
func (m *Manager) States() *state.Store[States] { return m.states }

// Credential publishes the credential of the live connection, nil when
// disconnected.
func (m *Manager) Credential() *state.Store[*handshake.Credential] { return m.credential }

// ConnectAsPanel obtains the credential from the host through parent and
// connects with it.
//
// Returns:
//   - error: handshake errors (ErrNotEmbedded, ErrHandshakeTimeout,
//     ErrInvalidCredential), ErrAuthInvalid, ErrConnectionFailed, or
//     ErrConnectInProgress
func (m *Manager) ConnectAsPanel(ctx context.Context, parent handshake.Port) error {
	startGen, err := m.beginConnect()
	if err != nil {
		return err
	}
	defer m.endConnect()

	cred, err := handshake.ConnectAsPanel(ctx, parent, handshake.PanelOptions{
		Timeout: m.handshakeTimeout,
		Logger:  m.logger,
	})
	if err != nil {
		return err
	}
	return m.establish(ctx, cred, startGen)
}

// ConnectWithCredential connects with a known backend URL and access token.
func (m *Manager) ConnectWithCredential(ctx context.Context, backendURL, accessToken string) error {
	cred := handshake.Credential{AccessToken: accessToken, BackendURL: backendURL}
	if err := cred.Validate(); err != nil {
		return err
	}

	startGen, err := m.beginConnect()
	if err != nil {
		return err
	}
	defer m.endConnect()

	return m.establish(ctx, cred, startGen)
}

// ConnectInteractive runs the interactive login against backendURL and
// connects with the resulting credential.
func (m *Manager) ConnectInteractive(ctx context.Context, backendURL string) error {
	if m.interactive == nil {
		return ErrInteractiveUnavailable
	}

	startGen, err := m.beginConnect()
	if err != nil {
		return err
	}
	defer m.endConnect()

	cred, err := m.interactive.Authenticate(ctx, backendURL)
	if err != nil {
		return fmt.Errorf("interactive login: %w", err)
	}
	if err := cred.Validate(); err != nil {
		return err
	}
	return m.establish(ctx, cred, startGen)
}

func (m *Manager) beginConnect() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connecting {
		return 0, ErrConnectInProgress
	}
	m.connecting = true
	return m.generation.Load(), nil
}

func (m *Manager) endConnect() {
	m.mu.Lock()
	m.connecting = false
	m.mu.Unlock()
}

// establish dials, installs the connection and starts the entity
// subscription. startGen is the generation seen when the connect began;
// if a Disconnect happened since, the new connection is discarded.
func (m *Manager) establish(ctx context.Context, cred handshake.Credential, startGen uint64) error {
	conn, err := m.dialer.Dial(ctx, cred)
	if err != nil {
		return err
	}

	m.pushMu.Lock()
	m.mu.Lock()
	if m.generation.Load() != startGen {
		m.mu.Unlock()
		m.pushMu.Unlock()
		conn.Close() //nolint:errcheck // discarded connection
		return fmt.Errorf("%w: disconnected while connecting", ErrConnectionFailed)
	}
	gen := m.generation.Add(1)
	old := m.conn
	m.conn = conn
	m.mu.Unlock()
	m.pushMu.Unlock()

	if old != nil {
		m.logger.Info("replacing existing backend connection")
		old.Close() //nolint:errcheck // superseded
	}

	if _, err := conn.SubscribeEntities(ctx, func(s States) { m.publishStates(gen, s) }); err != nil {
		if m.drop(gen) {
			m.connected.Set(false)
			m.credential.Set(nil)
		}
		conn.Close() //nolint:errcheck // subscription failed
		return err
	}

	m.pushMu.Lock()
	if m.generation.Load() == gen {
		m.credential.Set(&cred)
		m.connected.Set(true)
	}
	m.pushMu.Unlock()

	go m.watch(conn, gen)

	fields := []any{"url", cred.BackendURL}
	if exp, ok := cred.ExpiresAt(); ok {
		fields = append(fields, "token_expires", exp.Format(time.RFC3339))
	}
	m.logger.Info("backend connection established", fields...)
	return nil
}

func (m *Manager) publishStates(gen uint64, s States) {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	if m.generation.Load() != gen {
		return
	}
	m.states.Set(s)
}

// watch clears the connection if it ends while still current.
func (m *Manager) watch(conn Conn, gen uint64) {
	<-conn.Done()
	if m.drop(gen) {
		m.logger.Warn("backend connection lost")
		m.connected.Set(false)
		m.credential.Set(nil)
	}
}

// drop clears the connection if gen is still current.
func (m *Manager) drop(gen uint64) bool {
	m.pushMu.Lock()
	defer m.pushMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation.Load() != gen {
		return false
	}
	m.generation.Add(1)
	m.conn = nil
	return true
}

// Disconnect closes and clears the connection. Pushes from the closed
// connection are no longer published once Disconnect returns. Calling
// Disconnect without a connection does nothing.
func (m *Manager) Disconnect() {
	m.pushMu.Lock()
	m.mu.Lock()
	m.generation.Add(1)
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()
	m.pushMu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		m.logger.Debug("closing backend connection", "error", err)
	}
	m.connected.Set(false)
	m.credential.Set(nil)
	m.logger.Info("disconnected from backend")
}

func (m *Manager) current() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Call invokes a backend service. Failures, including not being
// connected, are logged and not returned. There is no retry.
//
// Parameters:
//   - domain: Service domain, e.g. "light"
//   - service: Service name, e.g. "turn_on"
//   - data: Service data, may be nil
//   - target: Entities to act on, may be nil
func (m *Manager) Call(ctx context.Context, domain, service string, data map[string]any, target *Target) {
	conn := m.current()
	if conn == nil {
		m.logger.Warn("service call dropped", "service", domain+"."+service, "error", ErrNotConnected)
		return
	}

	payload := map[string]any{
		"domain":  domain,
		"service": service,
	}
	if data != nil {
		payload["service_data"] = data
	}
	if target != nil {
		payload["target"] = target
	}

	if err := conn.Command(ctx, "call_service", payload, nil); err != nil {
		m.logger.Error("service call failed", "service", domain+"."+service, "error", err)
		return
	}
	m.logger.Debug("service called", "service", domain+"."+service)
}

// Toggle flips entityID using its domain's toggle service, falling back to
// homeassistant.toggle for domains without one.
func (m *Manager) Toggle(ctx context.Context, entityID string) {
	m.Call(ctx, ToggleService(entityID), "toggle", nil, EntityTarget(entityID))
}

// FetchAreas lists the area registry.
func (m *Manager) FetchAreas(ctx context.Context) ([]discovery.Area, error) {
	var areas []discovery.Area
	if err := m.command(ctx, "config/area_registry/list", nil, &areas); err != nil {
		return nil, fmt.Errorf("listing areas: %w", err)
	}
	return areas, nil
}

// FetchDevices lists the device registry.
func (m *Manager) FetchDevices(ctx context.Context) ([]discovery.Device, error) {
	var devices []discovery.Device
	if err := m.command(ctx, "config/device_registry/list", nil, &devices); err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// FetchEntityRegistry lists the entity registry.
func (m *Manager) FetchEntityRegistry(ctx context.Context) ([]discovery.EntityRegistryEntry, error) {
	var entries []discovery.EntityRegistryEntry
	if err := m.command(ctx, "config/entity_registry/list", nil, &entries); err != nil {
		return nil, fmt.Errorf("listing entity registry: %w", err)
	}
	return entries, nil
}

// Discover fetches the three registries concurrently and resolves them.
// The result reflects one snapshot; pushes arriving meanwhile do not
// restart it.
func (m *Manager) Discover(ctx context.Context) (discovery.Result, error) {
	var (
		areas    []discovery.Area
		devices  []discovery.Device
		entities []discovery.EntityRegistryEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		areas, err = m.FetchAreas(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		devices, err = m.FetchDevices(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		entities, err = m.FetchEntityRegistry(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return discovery.Result{}, fmt.Errorf("discovering entities: %w", err)
	}

	return discovery.Resolve(areas, devices, entities), nil
}

// GetUserData reads a per-user frontend value. An absent or null value
// yields ErrNoValue.
func (m *Manager) GetUserData(ctx context.Context, key string) (json.RawMessage, error) {
	var res struct {
		Value json.RawMessage `json:"value"`
	}
	if err := m.command(ctx, "frontend/get_user_data", map[string]any{"key": key}, &res); err != nil {
		return nil, fmt.Errorf("reading user data %q: %w", key, err)
	}
	if len(res.Value) == 0 || string(res.Value) == "null" {
		return nil, ErrNoValue
	}
	return res.Value, nil
}

// SetUserData writes a per-user frontend value.
func (m *Manager) SetUserData(ctx context.Context, key string, value any) error {
	if err := m.command(ctx, "frontend/set_user_data", map[string]any{"key": key, "value": value}, nil); err != nil {
		return fmt.Errorf("writing user data %q: %w", key, err)
	}
	return nil
}

func (m *Manager) command(ctx context.Context, msgType string, payload map[string]any, result any) error {
	conn := m.current()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Command(ctx, msgType, payload, result)
}
