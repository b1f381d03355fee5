package handshake

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// ===== ParseMessage =====

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Message
		wantErr bool
	}{
		{
			name:  "auth",
			input: `{"type":"auth","accessToken":"tok","backendUrl":"http://ha:8123"}`,
			want:  Message{Type: KindAuth, AccessToken: "tok", BackendURL: "http://ha:8123"},
		},
		{name: "auth request", input: `{"type":"auth-request"}`, want: Message{Type: KindAuthRequest}},
		{name: "toggle sidebar", input: `{"type":"toggle-sidebar"}`, want: Message{Type: KindToggleSidebar}},
		{name: "auth without fields parses", input: `{"type":"auth"}`, want: Message{Type: KindAuth}},
		{name: "unknown type", input: `{"type":"loxhome-auth"}`, wantErr: true},
		{name: "missing type", input: `{"accessToken":"tok"}`, wantErr: true},
		{name: "null", input: `null`, wantErr: true},
		{name: "array", input: `[1,2]`, wantErr: true},
		{name: "not json", input: `hello`, wantErr: true},
		{
			name:  "auth field of wrong type is dropped",
			input: `{"type":"auth","accessToken":42,"backendUrl":"http://ha:8123"}`,
			want:  Message{Type: KindAuth, BackendURL: "http://ha:8123"},
		},
		{name: "type of wrong type", input: `{"type":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Fatalf("ParseMessage() error = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ===== Credential =====

func TestCredential_Validate(t *testing.T) {
	if err := (Credential{AccessToken: "t", BackendURL: "u"}).Validate(); err != nil {
		t.Errorf("Validate() on complete credential: %v", err)
	}
	if err := (Credential{BackendURL: "u"}).Validate(); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Validate() missing token = %v, want ErrInvalidCredential", err)
	}
	if err := (Credential{AccessToken: "t"}).Validate(); !errors.Is(err, ErrInvalidCredential) {
		t.Errorf("Validate() missing url = %v, want ErrInvalidCredential", err)
	}
}

func TestCredential_ExpiresAt(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	got, ok := Credential{AccessToken: token}.ExpiresAt()
	if !ok {
		t.Fatal("ExpiresAt() ok = false, want true")
	}
	if !got.Equal(exp) {
		t.Errorf("ExpiresAt() = %v, want %v", got, exp)
	}

	if _, ok := (Credential{AccessToken: "not-a-jwt"}).ExpiresAt(); ok {
		t.Error("ExpiresAt() on opaque token ok = true, want false")
	}
}

// ===== ResolveFrameURL =====

func TestResolveFrameURL(t *testing.T) {
	tests := []struct {
		script string
		want   string
	}{
		{"", "/loxhome_static/index.html"},
		{"http://ha:8123/loxhome_static/loxhome-panel.js", "http://ha:8123/loxhome_static/index.html"},
		{"/local/loxhome/loxhome-panel.js?v=3", "/local/loxhome/index.html"},
		{"https://example.com/panel.js", "https://example.com/index.html"},
	}

	for _, tt := range tests {
		if got := ResolveFrameURL(tt.script); got != tt.want {
			t.Errorf("ResolveFrameURL(%q) = %q, want %q", tt.script, got, tt.want)
		}
	}
}

// ===== Pipe =====

func TestPipe_DeliversInOrder(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	got := make(chan string, 10)
	b.Listen(func(data []byte) { got <- string(data) })

	for _, m := range []string{"one", "two", "three"} {
		if err := a.PostMessage(context.Background(), []byte(m)); err != nil {
			t.Fatalf("PostMessage(%q): %v", m, err)
		}
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case m := <-got:
			if m != want {
				t.Fatalf("received %q, want %q", m, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestPipe_PostAfterCloseFails(t *testing.T) {
	a, b := NewPipe()
	b.Close()
	defer a.Close()

	if err := a.PostMessage(context.Background(), []byte("x")); !errors.Is(err, ErrPortClosed) {
		t.Errorf("PostMessage() to closed peer = %v, want ErrPortClosed", err)
	}
}

// ===== ConnectAsPanel =====

func TestConnectAsPanel_NotEmbedded(t *testing.T) {
	_, err := ConnectAsPanel(context.Background(), nil, PanelOptions{})
	if !errors.Is(err, ErrNotEmbedded) {
		t.Errorf("ConnectAsPanel(nil) error = %v, want ErrNotEmbedded", err)
	}
}

func TestConnectAsPanel_WithHost(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	defer hostEnd.Close()
	defer frameEnd.Close()

	host := NewHost(nil)
	host.settleDelay = 10 * time.Millisecond
	defer host.Close()

	host.Embed(hostEnd, "")
	host.SetCredential(Credential{AccessToken: "T", BackendURL: "http://ha:8123"})
	host.FrameLoaded()

	cred, err := ConnectAsPanel(context.Background(), frameEnd, PanelOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("ConnectAsPanel() error: %v", err)
	}
	if cred.AccessToken != "T" || cred.BackendURL != "http://ha:8123" {
		t.Errorf("ConnectAsPanel() = %+v, want token T and backend url", cred)
	}
	waitFor(t, func() bool { return frameEnd.ListenerCount() == 0 })
}

func TestConnectAsPanel_Timeout(t *testing.T) {
	parent, frameEnd := NewPipe()
	defer parent.Close()
	defer frameEnd.Close()

	start := time.Now()
	_, err := ConnectAsPanel(context.Background(), frameEnd, PanelOptions{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrHandshakeTimeout) {
		t.Fatalf("ConnectAsPanel() error = %v, want ErrHandshakeTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if n := frameEnd.ListenerCount(); n != 0 {
		t.Errorf("ListenerCount() after timeout = %d, want 0", n)
	}

	// A late credential after the timeout has nothing listening for it.
	if err := Post(context.Background(), parent, AuthMessage(Credential{AccessToken: "T", BackendURL: "u"})); err != nil {
		t.Fatalf("posting late credential: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := frameEnd.ListenerCount(); n != 0 {
		t.Errorf("ListenerCount() after late credential = %d, want 0", n)
	}
}

func TestConnectAsPanel_InvalidCredential(t *testing.T) {
	parent, frameEnd := NewPipe()
	defer parent.Close()
	defer frameEnd.Close()

	parent.Listen(func(data []byte) {
		msg, err := ParseMessage(data)
		if err == nil && msg.Type == KindAuthRequest {
			_ = parent.PostMessage(context.Background(), []byte(`{"type":"auth","backendUrl":"http://ha:8123"}`))
		}
	})

	_, err := ConnectAsPanel(context.Background(), frameEnd, PanelOptions{Timeout: time.Second})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("ConnectAsPanel() error = %v, want ErrInvalidCredential", err)
	}
	waitFor(t, func() bool { return frameEnd.ListenerCount() == 0 })
}

func TestConnectAsPanel_WrongFieldTypeRejectedImmediately(t *testing.T) {
	parent, frameEnd := NewPipe()
	defer parent.Close()
	defer frameEnd.Close()

	parent.Listen(func(data []byte) {
		msg, err := ParseMessage(data)
		if err == nil && msg.Type == KindAuthRequest {
			_ = parent.PostMessage(context.Background(), []byte(`{"type":"auth","accessToken":["t"],"backendUrl":"http://ha:8123"}`))
		}
	})

	start := time.Now()
	_, err := ConnectAsPanel(context.Background(), frameEnd, PanelOptions{Timeout: 5 * time.Second})
	if !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("ConnectAsPanel() error = %v, want ErrInvalidCredential", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("rejection took %v, want it before the timeout", elapsed)
	}
}

func TestHandshakeDefaultTimings(t *testing.T) {
	if DefaultTimeout != 5000*time.Millisecond {
		t.Errorf("DefaultTimeout = %v, want 5s", DefaultTimeout)
	}
	if settleDelay != 200*time.Millisecond {
		t.Errorf("settleDelay = %v, want 200ms", settleDelay)
	}
	if h := NewHost(nil); h.settleDelay != 200*time.Millisecond {
		t.Errorf("NewHost() settle delay = %v, want 200ms", h.settleDelay)
	}
}

func TestConnectAsPanel_ZeroOptionsWaitsForDefaultTimeout(t *testing.T) {
	parent, frameEnd := NewPipe()
	defer parent.Close()
	defer frameEnd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := ConnectAsPanel(ctx, frameEnd, PanelOptions{})
		errc <- err
	}()

	select {
	case err := <-errc:
		t.Fatalf("ConnectAsPanel() returned early: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("ConnectAsPanel() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ConnectAsPanel() did not return after cancel")
	}
}

func TestHost_DefaultSettleDelay(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	defer hostEnd.Close()
	defer frameEnd.Close()

	got := make(chan time.Time, 4)
	frameEnd.Listen(func(data []byte) {
		if msg, err := ParseMessage(data); err == nil && msg.Type == KindAuth {
			got <- time.Now()
		}
	})

	host := NewHost(nil)
	defer host.Close()
	host.Embed(hostEnd, "/local/loxhome/loxhome-panel.js")
	host.SetCredential(Credential{AccessToken: "T", BackendURL: "u"})

	loaded := time.Now()
	host.FrameLoaded()

	select {
	case at := <-got:
		if d := at.Sub(loaded); d < 200*time.Millisecond {
			t.Errorf("credential sent %v after load, want at least 200ms", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("credential never sent")
	}
}

func TestConnectAsPanel_FirstCredentialWins(t *testing.T) {
	parent, frameEnd := NewPipe()
	defer parent.Close()
	defer frameEnd.Close()

	parent.Listen(func(data []byte) {
		msg, err := ParseMessage(data)
		if err != nil || msg.Type != KindAuthRequest {
			return
		}
		ctx := context.Background()
		_ = parent.PostMessage(ctx, []byte(`not json`))
		_ = Post(ctx, parent, AuthMessage(Credential{AccessToken: "first", BackendURL: "u"}))
		_ = Post(ctx, parent, AuthMessage(Credential{AccessToken: "second", BackendURL: "u"}))
	})

	cred, err := ConnectAsPanel(context.Background(), frameEnd, PanelOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("ConnectAsPanel() error: %v", err)
	}
	if cred.AccessToken != "first" {
		t.Errorf("AccessToken = %q, want first", cred.AccessToken)
	}
}

func TestConnectAsPanel_ContextCancelled(t *testing.T) {
	parent, frameEnd := NewPipe()
	defer parent.Close()
	defer frameEnd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := ConnectAsPanel(ctx, frameEnd, PanelOptions{Timeout: 5 * time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ConnectAsPanel() error = %v, want context.Canceled", err)
	}
	if n := frameEnd.ListenerCount(); n != 0 {
		t.Errorf("ListenerCount() after cancel = %d, want 0", n)
	}
}

// ===== Host =====

func TestHost_SendAuthRequiresReadyFrameAndCredential(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	defer hostEnd.Close()
	defer frameEnd.Close()

	var received atomic.Int32
	frameEnd.Listen(func([]byte) { received.Add(1) })

	host := NewHost(nil)
	defer host.Close()

	// No frame yet.
	if err := host.SendAuth(context.Background()); err != nil {
		t.Fatalf("SendAuth() without frame: %v", err)
	}

	host.Embed(hostEnd, "")
	host.SetCredential(Credential{AccessToken: "T", BackendURL: "u"})
	// Frame embedded with credential but not loaded.
	if err := host.SendAuth(context.Background()); err != nil {
		t.Fatalf("SendAuth() before load: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if n := received.Load(); n != 0 {
		t.Fatalf("frame received %d messages before load, want 0", n)
	}

	host.settleDelay = time.Hour
	host.FrameLoaded()
	if err := host.SendAuth(context.Background()); err != nil {
		t.Fatalf("SendAuth() after load: %v", err)
	}
	waitFor(t, func() bool { return received.Load() == 1 })
}

func TestHost_FrameLoadedSendsAfterSettleDelay(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	defer hostEnd.Close()
	defer frameEnd.Close()

	got := make(chan Message, 1)
	frameEnd.Listen(func(data []byte) {
		if msg, err := ParseMessage(data); err == nil {
			got <- msg
		}
	})

	host := NewHost(nil)
	host.settleDelay = 30 * time.Millisecond
	defer host.Close()

	if url := host.Embed(hostEnd, "/local/loxhome/loxhome-panel.js"); url != "/local/loxhome/index.html" {
		t.Errorf("Embed() = %q", url)
	}
	host.SetCredential(Credential{AccessToken: "T", BackendURL: "u"})
	host.FrameLoaded()

	select {
	case msg := <-got:
		if msg.Type != KindAuth || msg.AccessToken != "T" {
			t.Errorf("frame received %+v, want auth with token T", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("frame never received the credential")
	}
}

func TestHost_CloseCancelsPendingSend(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	defer hostEnd.Close()
	defer frameEnd.Close()

	var received atomic.Int32
	frameEnd.Listen(func([]byte) { received.Add(1) })

	host := NewHost(nil)
	host.settleDelay = 30 * time.Millisecond
	host.Embed(hostEnd, "")
	host.SetCredential(Credential{AccessToken: "T", BackendURL: "u"})
	host.FrameLoaded()
	host.Close()

	time.Sleep(60 * time.Millisecond)
	if n := received.Load(); n != 0 {
		t.Errorf("frame received %d messages after Close, want 0", n)
	}
	if n := hostEnd.ListenerCount(); n != 0 {
		t.Errorf("host listeners after Close = %d, want 0", n)
	}
}

func TestHost_ToggleSidebar(t *testing.T) {
	hostEnd, frameEnd := NewPipe()
	defer hostEnd.Close()
	defer frameEnd.Close()

	var toggles atomic.Int32
	host := NewHost(SidebarTogglerFunc(func() { toggles.Add(1) }))
	defer host.Close()
	host.Embed(hostEnd, "")

	if err := Post(context.Background(), frameEnd, Message{Type: KindToggleSidebar}); err != nil {
		t.Fatalf("Post(): %v", err)
	}
	waitFor(t, func() bool { return toggles.Load() == 1 })
}
