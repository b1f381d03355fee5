package hass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nerrad567/loxhome-core/internal/handshake"
)

// OAuth endpoints relative to the backend base URL.
const (
	authorizePath = "/auth/authorize"
	tokenPath     = "/auth/token"

	callbackShutdownTimeout = 5 * time.Second
)

// OAuthFlow logs in through the backend's authorization-code flow with a
// loopback redirect. It implements InteractiveAuth.
//
// The backend identifies clients by URL: ClientID is usually the base URL of
// the redirect, e.g. "http://127.0.0.1:8091/", with RedirectURL below it.
type OAuthFlow struct {
	ClientID    string
	RedirectURL string

	// Open presents the authorization URL to the user, typically by
	// printing it or launching a browser.
	Open func(authURL string) error

	// Listener receives the redirect. When nil, the flow listens on the
	// host:port of RedirectURL.
	Listener net.Listener

	// HTTPClient is used for the token exchange. Optional.
	HTTPClient *http.Client

	logger Logger
}

// SetLogger sets the logger for the flow.
func (f *OAuthFlow) SetLogger(logger Logger) {
	f.logger = logger
}

type callbackResult struct {
	code string
	err  error
}

// Authenticate runs the flow against backendURL and returns a credential
// holding the issued access token.
func (f *OAuthFlow) Authenticate(ctx context.Context, backendURL string) (handshake.Credential, error) {
	logger := f.logger
	if logger == nil {
		logger = noopLogger{}
	}
	if f.Open == nil {
		return handshake.Credential{}, fmt.Errorf("%w: no way to open the login page", ErrAuthorizationFailed)
	}

	base := strings.TrimSuffix(backendURL, "/")
	conf := &oauth2.Config{
		ClientID:    f.ClientID,
		RedirectURL: f.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + authorizePath,
			TokenURL:  base + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	redirect, err := url.Parse(f.RedirectURL)
	if err != nil {
		return handshake.Credential{}, fmt.Errorf("parsing redirect url: %w", err)
	}

	ln := f.Listener
	if ln == nil {
		ln, err = net.Listen("tcp", redirect.Host)
		if err != nil {
			return handshake.Credential{}, fmt.Errorf("listening for oauth callback: %w", err)
		}
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	r := chi.NewRouter()
	r.Get(callbackPath(redirect), func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("%w: state mismatch", ErrAuthorizationFailed)
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrAuthorizationFailed, q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("%w: missing code", ErrAuthorizationFailed)
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = w.Write([]byte("Login complete. You can close this window."))
		}

		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("oauth callback server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state)
	logger.Info("waiting for interactive login", "authorize_url", authURL)
	if err := f.Open(authURL); err != nil {
		return handshake.Credential{}, fmt.Errorf("opening login page: %w", err)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return handshake.Credential{}, ctx.Err()
	}
	if res.err != nil {
		return handshake.Credential{}, res.err
	}

	if f.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, f.HTTPClient)
	}
	tok, err := conf.Exchange(ctx, res.code)
	if err != nil {
		return handshake.Credential{}, fmt.Errorf("%w: exchanging code: %v", ErrAuthorizationFailed, err)
	}

	return handshake.Credential{AccessToken: tok.AccessToken, BackendURL: base}, nil
}

func callbackPath(redirect *url.URL) string {
	if redirect.Path == "" {
		return "/"
	}
	return redirect.Path
}
