package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/loxhome-core/internal/dashboard"
	"github.com/nerrad567/loxhome-core/internal/discovery"
	"github.com/nerrad567/loxhome-core/internal/hass"
)

// ─── Fake Session ──────────────────────────────────────────────────

type serviceCall struct {
	domain  string
	service string
	data    map[string]any
	target  *hass.Target
}

type fakeSession struct {
	result   discovery.Result
	states   hass.States
	userData map[string]json.RawMessage
	setErr   error

	toggled []string
	calls   []serviceCall
	saved   map[string]any
	closed  bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		userData: map[string]json.RawMessage{},
		saved:    map[string]any{},
	}
}

func (f *fakeSession) Discover(context.Context) (discovery.Result, error) {
	return f.result, nil
}

func (f *fakeSession) States(context.Context) hass.States {
	return f.states
}

func (f *fakeSession) Toggle(_ context.Context, entityID string) {
	f.toggled = append(f.toggled, entityID)
}

func (f *fakeSession) Close() {
	f.closed = true
}

func (f *fakeSession) Call(_ context.Context, domain, service string, data map[string]any, target *hass.Target) {
	f.calls = append(f.calls, serviceCall{domain, service, data, target})
}

func (f *fakeSession) GetUserData(_ context.Context, key string) (json.RawMessage, error) {
	raw, ok := f.userData[key]
	if !ok {
		return nil, hass.ErrNoValue
	}
	return raw, nil
}

func (f *fakeSession) SetUserData(_ context.Context, key string, value any) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.saved[key] = value
	return nil
}

// ─── Harness ───────────────────────────────────────────────────────

type dialRecord struct {
	url, token string
	count      int
}

type harness struct {
	session *fakeSession
	env     map[string]string
	dialed  dialRecord
	stdin   io.Reader
}

func newHarness() *harness {
	return &harness{
		session: newFakeSession(),
		env: map[string]string{
			"LOXHOME_BACKEND_URL":   "http://ha.local:8123",
			"LOXHOME_BACKEND_TOKEN": "env-token",
		},
	}
}

func (h *harness) run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(Options{
		Build:  BuildInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-03-01"},
		Stdout: &out,
		Stderr: &errOut,
		Stdin:  h.stdin,
		Dial: func(_ context.Context, url, token string, _ io.Writer) (Session, error) {
			h.dialed = dialRecord{url: url, token: token, count: h.dialed.count + 1}
			return h.session, nil
		},
		Getenv:     func(k string) string { return h.env[k] },
		SkipDotEnv: true,
	})
	root.SetArgs(append([]string{"--no-color"}, args...))
	err = root.Execute()
	return out.String(), errOut.String(), err
}

// ─── Connection Settings ───────────────────────────────────────────

func TestConnect_MissingSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want error
	}{
		{"no url", map[string]string{"LOXHOME_BACKEND_TOKEN": "t"}, ErrMissingURL},
		{"no token", map[string]string{"LOXHOME_BACKEND_URL": "http://ha"}, ErrMissingToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.env = tt.env
			_, _, err := h.run(t, "discover")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if h.dialed.count != 0 {
				t.Error("dialed despite missing settings")
			}
		})
	}
}

func TestConnect_FlagsOverrideEnvironment(t *testing.T) {
	h := newHarness()
	if _, _, err := h.run(t, "--url", "http://flag:8123", "--token", "flag-token", "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if h.dialed.url != "http://flag:8123" || h.dialed.token != "flag-token" {
		t.Errorf("dialed %+v, want flag values", h.dialed)
	}
	if !h.session.closed {
		t.Error("session not closed after command")
	}
}

func TestConnect_EnvironmentDefaults(t *testing.T) {
	h := newHarness()
	if _, _, err := h.run(t, "discover"); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if h.dialed.url != "http://ha.local:8123" || h.dialed.token != "env-token" {
		t.Errorf("dialed %+v, want environment values", h.dialed)
	}
}

// ─── Discover ──────────────────────────────────────────────────────

func sampleResult() discovery.Result {
	return discovery.Result{
		Areas: []discovery.AreaEntities{
			{
				Area:     discovery.Area{AreaID: "living_room", Name: "Wohnzimmer"},
				Entities: []string{"light.ceiling", "sensor.temperature", "light.floor"},
			},
		},
		Unassigned:       []string{"switch.garden"},
		FavoriteEntities: []string{"light.ceiling"},
	}
}

func TestDiscover_Text(t *testing.T) {
	h := newHarness()
	h.session.result = sampleResult()

	out, _, err := h.run(t, "discover")
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	for _, want := range []string{
		"Wohnzimmer (living_room)",
		"  Beleuchtung: light.ceiling, light.floor",
		"  Sensoren: sensor.temperature",
		"Unassigned\n  Schalter: switch.garden",
		"Favorites\n  Beleuchtung: light.ceiling",
		"1 areas, 4 entities",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Central") {
		t.Errorf("empty central section printed:\n%s", out)
	}
}

func TestDiscover_JSON(t *testing.T) {
	h := newHarness()
	h.session.result = sampleResult()

	out, _, err := h.run(t, "discover", "--json")
	if err != nil {
		t.Fatalf("discover --json: %v", err)
	}

	var got discovery.Result
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(got.Areas) != 1 || got.Areas[0].Area.AreaID != "living_room" {
		t.Errorf("areas = %+v", got.Areas)
	}
	if len(got.FavoriteEntities) != 1 {
		t.Errorf("favoriteEntities = %v", got.FavoriteEntities)
	}
}

// ─── States ────────────────────────────────────────────────────────

func sampleStates() hass.States {
	return hass.States{
		"switch.garden": {EntityID: "switch.garden", State: "off", LastChanged: "2026-03-01T08:00:00Z"},
		"light.floor":   {EntityID: "light.floor", State: "on", LastChanged: "2026-03-01T09:00:00Z"},
		"light.ceiling": {EntityID: "light.ceiling", State: "off", LastChanged: "2026-03-01T07:00:00Z"},
	}
}

func TestStates_Table(t *testing.T) {
	h := newHarness()
	h.session.states = sampleStates()

	out, _, err := h.run(t, "states")
	if err != nil {
		t.Fatalf("states: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "ENTITY") {
		t.Errorf("header = %q", lines[0])
	}
	wantOrder := []string{"light.ceiling", "light.floor", "switch.garden"}
	for i, id := range wantOrder {
		if !strings.HasPrefix(lines[i+1], id) {
			t.Errorf("line %d = %q, want %s first", i+1, lines[i+1], id)
		}
	}
}

func TestStates_Filters(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"domain", []string{"states", "--domain", "light"}, []string{"light.ceiling", "light.floor"}},
		{"ids", []string{"states", "switch.garden"}, []string{"switch.garden"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.session.states = sampleStates()

			out, _, err := h.run(t, append(tt.args, "--json")...)
			if err != nil {
				t.Fatalf("states: %v", err)
			}
			var got hass.States
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d entities, want %v", len(got), tt.want)
			}
			for _, id := range tt.want {
				if _, ok := got[id]; !ok {
					t.Errorf("missing %s", id)
				}
			}
		})
	}
}

func TestStates_UnknownEntity(t *testing.T) {
	h := newHarness()
	h.session.states = sampleStates()

	_, _, err := h.run(t, "states", "light.missing")
	if err == nil || !strings.Contains(err.Error(), "light.missing") {
		t.Fatalf("err = %v, want not-found error naming the entity", err)
	}
}

// ─── Services ──────────────────────────────────────────────────────

func TestToggle(t *testing.T) {
	tests := []struct {
		entityID    string
		wantService string
	}{
		{"light.kitchen", "light.toggle"},
		{"cover.blinds", "homeassistant.toggle"},
	}
	for _, tt := range tests {
		t.Run(tt.entityID, func(t *testing.T) {
			h := newHarness()
			out, _, err := h.run(t, "toggle", tt.entityID)
			if err != nil {
				t.Fatalf("toggle: %v", err)
			}
			if len(h.session.toggled) != 1 || h.session.toggled[0] != tt.entityID {
				t.Errorf("toggled = %v", h.session.toggled)
			}
			if !strings.Contains(out, tt.wantService) {
				t.Errorf("output %q missing %s", out, tt.wantService)
			}
		})
	}
}

func TestToggle_InvalidEntityID(t *testing.T) {
	h := newHarness()
	if _, _, err := h.run(t, "toggle", "kitchen"); err == nil {
		t.Fatal("expected error for entity id without domain")
	}
	if h.dialed.count != 0 {
		t.Error("dialed for an invalid entity id")
	}
}

func TestCall(t *testing.T) {
	h := newHarness()
	_, _, err := h.run(t, "call", "light", "turn_on",
		"--entity", "light.a,light.b",
		"--data", `{"brightness": 128}`,
	)
	if err != nil {
		t.Fatalf("call: %v", err)
	}

	if len(h.session.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(h.session.calls))
	}
	c := h.session.calls[0]
	if c.domain != "light" || c.service != "turn_on" {
		t.Errorf("service = %s.%s", c.domain, c.service)
	}
	if c.target == nil || len(c.target.EntityID) != 2 {
		t.Errorf("target = %+v, want two entities", c.target)
	}
	if c.data["brightness"] != float64(128) {
		t.Errorf("data = %v", c.data)
	}
}

func TestCall_NoTarget(t *testing.T) {
	h := newHarness()
	if _, _, err := h.run(t, "call", "homeassistant", "reload_all"); err != nil {
		t.Fatalf("call: %v", err)
	}
	if c := h.session.calls[0]; c.target != nil || c.data != nil {
		t.Errorf("call = %+v, want nil target and data", c)
	}
}

func TestCall_InvalidData(t *testing.T) {
	h := newHarness()
	if _, _, err := h.run(t, "call", "light", "turn_on", "--data", "{"); err == nil {
		t.Fatal("expected error for malformed --data")
	}
	if len(h.session.calls) != 0 {
		t.Error("service called despite malformed data")
	}
}

// ─── Config Export / Import ────────────────────────────────────────

func TestConfigExport_DefaultWhenNothingStored(t *testing.T) {
	h := newHarness()

	out, _, err := h.run(t, "config", "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	cfg, err := dashboard.ParseYAML([]byte(out))
	if err != nil {
		t.Fatalf("exported YAML does not parse: %v\n%s", err, out)
	}
	if cfg.Title != dashboard.Default().Title {
		t.Errorf("title = %q, want default", cfg.Title)
	}
}

func TestConfigExport_StoredToJSONFile(t *testing.T) {
	h := newHarness()
	h.session.userData[dashboard.RemoteKey] = json.RawMessage(
		`{"version":1,"title":"Ferienhaus","views":[{"id":"v1","name":"Küche","tiles":[]}],"settings":{"columns":3}}`)

	path := filepath.Join(t.TempDir(), "dashboard.json")
	if _, _, err := h.run(t, "config", "export", "-o", path); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	cfg, err := dashboard.ParseJSON(data)
	if err != nil {
		t.Fatalf("exported JSON does not parse: %v", err)
	}
	if cfg.Title != "Ferienhaus" || len(cfg.Views) != 1 || cfg.Settings.Columns != 3 {
		t.Errorf("exported config = %+v", cfg)
	}
}

func TestConfigImport_YAMLFile(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "dashboard.yaml")
	content := `version: 1
title: Stadtwohnung
views:
  - id: living
    name: Wohnzimmer
    tiles:
      - id: t1
        type: light
        entityId: light.ceiling
        size: 1x1
settings:
  columns: 4
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	out, _, err := h.run(t, "config", "import", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 1 views") {
		t.Errorf("output = %q", out)
	}

	saved, ok := h.session.saved[dashboard.RemoteKey].(dashboard.Config)
	if !ok {
		t.Fatalf("saved %T under %q, want dashboard.Config", h.session.saved[dashboard.RemoteKey], dashboard.RemoteKey)
	}
	if saved.Title != "Stadtwohnung" || saved.Views[0].Tiles[0].EntityID != "light.ceiling" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestConfigImport_Stdin(t *testing.T) {
	h := newHarness()
	h.stdin = strings.NewReader(`{"version":2,"title":"Pipe","views":[],"settings":{}}`)

	if _, _, err := h.run(t, "config", "import", "-", "--format", "json"); err != nil {
		t.Fatalf("import: %v", err)
	}
	saved := h.session.saved[dashboard.RemoteKey].(dashboard.Config)
	if saved.Version != 2 || saved.Title != "Pipe" {
		t.Errorf("saved = %+v", saved)
	}
}

func TestConfigImport_InvalidNeverDials(t *testing.T) {
	h := newHarness()
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("version: 0\nviews: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, _, err := h.run(t, "config", "import", path)
	if !errors.Is(err, dashboard.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
	if h.dialed.count != 0 {
		t.Error("dialed for an invalid config")
	}
}

func TestConfigImport_BackendError(t *testing.T) {
	h := newHarness()
	h.session.setErr = hass.ErrNotConnected
	h.stdin = strings.NewReader("version: 1\n")

	_, _, err := h.run(t, "config", "import", "-")
	if !errors.Is(err, hass.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestConfigAddView(t *testing.T) {
	h := newHarness()

	out, _, err := h.run(t, "config", "add-view", "Büro", "--icon", "mdi:desk")
	if err != nil {
		t.Fatalf("add-view: %v", err)
	}
	saved, ok := h.session.saved[dashboard.RemoteKey].(dashboard.Config)
	if !ok {
		t.Fatalf("saved %T, want dashboard.Config", h.session.saved[dashboard.RemoteKey])
	}
	if len(saved.Views) != 2 {
		t.Fatalf("views = %d, want default view plus the new one", len(saved.Views))
	}
	added := saved.Views[1]
	if added.Name != "Büro" || added.Icon != "mdi:desk" || added.ID == "" {
		t.Errorf("added view = %+v", added)
	}
	if !strings.Contains(out, added.ID) {
		t.Errorf("output %q does not name the new view id", out)
	}
}

func TestConfigAddTile(t *testing.T) {
	h := newHarness()
	h.session.userData[dashboard.RemoteKey] = json.RawMessage(
		`{"version":1,"title":"Ferienhaus","views":[{"id":"v1","name":"Küche","tiles":[]}],"settings":{"columns":3}}`)

	out, _, err := h.run(t, "config", "add-tile", "v1", "light.ceiling", "--size", "2x1")
	if err != nil {
		t.Fatalf("add-tile: %v", err)
	}
	if !strings.Contains(out, "light tile for light.ceiling") {
		t.Errorf("output = %q", out)
	}
	saved := h.session.saved[dashboard.RemoteKey].(dashboard.Config)
	tiles := saved.Views[0].Tiles
	if len(tiles) != 1 || tiles[0].EntityID != "light.ceiling" || tiles[0].Size != dashboard.Size2x1 || tiles[0].ID == "" {
		t.Errorf("tiles = %+v", tiles)
	}
	if saved.Title != "Ferienhaus" || saved.Settings.Columns != 3 {
		t.Errorf("stored config not preserved: %+v", saved)
	}
}

func TestConfigAddTile_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"unknown view", []string{"attic", "light.a"}, dashboard.ErrViewNotFound},
		{"unsupported entity", []string{"home", "weather.home"}, dashboard.ErrUnsupportedEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			_, _, err := h.run(t, append([]string{"config", "add-tile"}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(h.session.saved) != 0 {
				t.Error("config saved after a failed edit")
			}
		})
	}
}

func TestResolveFormat(t *testing.T) {
	tests := []struct {
		explicit, path string
		want           string
		wantErr        bool
	}{
		{"", "dash.yaml", formatYAML, false},
		{"", "dash.JSON", formatJSON, false},
		{"", "-", formatYAML, false},
		{"yml", "dash.json", formatYAML, false},
		{"json", "", formatJSON, false},
		{"toml", "", "", true},
	}
	for _, tt := range tests {
		got, err := resolveFormat(tt.explicit, tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("resolveFormat(%q, %q) err = %v", tt.explicit, tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveFormat(%q, %q) = %q, want %q", tt.explicit, tt.path, got, tt.want)
		}
	}
}

// ─── Version ───────────────────────────────────────────────────────

func TestVersion(t *testing.T) {
	h := newHarness()
	out, _, err := h.run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if want := "loxctl 1.2.3 (commit abc123, built 2026-03-01)\n"; out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
	if h.dialed.count != 0 {
		t.Error("version must not connect")
	}
}
