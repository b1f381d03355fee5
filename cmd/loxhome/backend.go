package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/nerrad567/loxhome-core/internal/handshake"
	"github.com/nerrad567/loxhome-core/internal/hass"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
	"github.com/nerrad567/loxhome-core/internal/infrastructure/logging"
	"github.com/nerrad567/loxhome-core/internal/state"
)

// Reconnect backoff bounds for the backend supervisor.
const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = time.Minute
)

// connectFunc performs one connection attempt.
type connectFunc func(ctx context.Context) error

// backendConnector returns the connection attempt for the configured mode and
// a function releasing whatever the attempts left open.
func backendConnector(cfg config.BackendConfig, manager *hass.Manager, log *logging.Logger) (connectFunc, func()) {
	switch cfg.Mode {
	case config.BackendModePanel:
		return panelConnector(cfg, manager, log)

	case config.BackendModeInteractive:
		flow := &hass.OAuthFlow{
			ClientID:    cfg.OAuth.ClientID,
			RedirectURL: cfg.OAuth.RedirectURL,
			Open:        printLoginURL,
		}
		flow.SetLogger(log.With("component", "oauth"))
		manager.SetInteractiveAuth(flow)
		return func(ctx context.Context) error {
			return manager.ConnectInteractive(ctx, cfg.URL)
		}, func() {}

	default:
		log.Info("connecting with access token",
			"url", cfg.URL,
			"token", logging.Redact(cfg.Token),
		)
		return func(ctx context.Context) error {
			return manager.ConnectWithCredential(ctx, cfg.URL, cfg.Token)
		}, func() {}
	}
}

// panelConnector dials the host frame for every attempt. The port of the
// live connection stays open so the host can relay refreshed credentials.
func panelConnector(cfg config.BackendConfig, manager *hass.Manager, log *logging.Logger) (connectFunc, func()) {
	var (
		mu   sync.Mutex
		port *handshake.WSPort
	)

	release := func() {
		mu.Lock()
		defer mu.Unlock()
		if port != nil {
			port.Close() //nolint:errcheck // closing on shutdown or before redial
			port = nil
		}
	}

	connect := func(ctx context.Context) error {
		release()

		p, err := handshake.DialPort(ctx, cfg.HostFrameURL)
		if err != nil {
			return fmt.Errorf("%w: %w", handshake.ErrNotEmbedded, err)
		}
		log.Info("host frame connected", "url", cfg.HostFrameURL)

		if err := manager.ConnectAsPanel(ctx, p); err != nil {
			p.Close() //nolint:errcheck // attempt failed
			return err
		}

		mu.Lock()
		port = p
		mu.Unlock()
		return nil
	}

	return connect, release
}

// printLoginURL presents the authorization URL of the interactive login.
func printLoginURL(authURL string) error {
	_, err := fmt.Fprintf(os.Stderr, "%s %s\n",
		color.New(color.FgCyan, color.Bold).Sprint("Log in to continue:"),
		authURL,
	)
	return err
}

// supervisor keeps the backend connection up. The manager itself never
// reconnects: the supervisor retries failed attempts with exponential
// backoff and starts a new attempt when an established connection drops.
//
// A rejected access token ends supervision.
type supervisor struct {
	connected *state.Store[bool]
	connect   connectFunc
	log       *logging.Logger

	// onConnect runs after every successful attempt. Optional.
	onConnect func(ctx context.Context)

	initialDelay time.Duration
	maxDelay     time.Duration
}

func newSupervisor(connected *state.Store[bool], connect connectFunc, log *logging.Logger) *supervisor {
	return &supervisor{
		connected:    connected,
		connect:      connect,
		log:          log,
		initialDelay: reconnectInitialDelay,
		maxDelay:     reconnectMaxDelay,
	}
}

// Run blocks until ctx is cancelled or the credential is rejected.
func (s *supervisor) Run(ctx context.Context) {
	delay := s.initialDelay
	for {
		err := s.connect(ctx)
		switch {
		case err == nil:
			s.log.Info("backend connected")
			delay = s.initialDelay
			if s.onConnect != nil {
				s.onConnect(ctx)
			}
			if !s.waitDisconnect(ctx) {
				return
			}
			s.log.Warn("backend connection lost, reconnecting")
			continue

		case ctx.Err() != nil:
			return

		case errors.Is(err, hass.ErrAuthInvalid):
			s.log.Error("backend rejected the access token, giving up", "error", err)
			return

		case errors.Is(err, hass.ErrConnectInProgress):
			// Someone else is connecting; check back after the delay.

		default:
			s.log.Warn("backend connect failed", "error", err, "retry_in", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxDelay)
	}
}

// waitDisconnect blocks until the connected flag turns false. It reports
// false when ctx ended first.
func (s *supervisor) waitDisconnect(ctx context.Context) bool {
	lost := make(chan struct{}, 1)
	unsubscribe := s.connected.Subscribe(func(connected bool) {
		if connected {
			return
		}
		select {
		case lost <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return false
	case <-lost:
		return true
	}
}
