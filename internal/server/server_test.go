package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matthewidavis/ResponsiveBOXES/internal/config"
	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/store"
	"github.com/matthewidavis/ResponsiveBOXES/internal/surveillance"
	"github.com/matthewidavis/ResponsiveBOXES/internal/trigger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
	"github.com/matthewidavis/ResponsiveBOXES/pkg/camera"
)

type staticSource struct{}

func (staticSource) Setup(ctx context.Context) error { return nil }

func (staticSource) Poll(ctx context.Context) (*camera.Snapshot, error) {
	return &camera.Snapshot{Frame: image.NewNRGBA(image.Rect(0, 0, 32, 32)), FetchedAt: time.Now()}, nil
}

func (staticSource) Info() camera.Info { return camera.Info{} }

type recordingCommander struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (c *recordingCommander) Send(ctx context.Context, command string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, command)
	return c.err
}

func (c *recordingCommander) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type testEnv struct {
	ts       *httptest.Server
	registry *zones.Registry
	mgr      *surveillance.Manager
	cmd      *recordingCommander
	store    store.Store
	cfg      *config.Config
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	cfg := config.Default()
	reg := zones.NewRegistry()
	cmd := &recordingCommander{}
	bus := events.NewBus()
	disp := trigger.NewDispatcher(cmd, bus, trigger.Options{Workers: 1, QueueSize: 4})
	st := store.NewYAML(filepath.Join(t.TempDir(), "state.yaml"))

	mgr := surveillance.NewManager(surveillance.Deps{
		Config:     cfg,
		Zones:      reg,
		Dispatcher: disp,
		Events:     bus,
		Store:      st,
		Sources: func(cam config.CameraConfig, snap config.Snapshot) (surveillance.FrameSource, error) {
			return staticSource{}, nil
		},
	})

	srv := New(cfg, mgr, reg, disp, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		mgr.Stop()
		disp.Close()
		bus.Close()
	})

	return &testEnv{ts: ts, registry: reg, mgr: mgr, cmd: cmd, store: st, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Reading body failed: %v", err)
	}
	return resp, data
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected OK body, got %q", body)
	}
}

func TestZoneLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodPost, "/api/zones",
		`{"x":10,"y":10,"width":40,"height":30,"title":"Door","command":"http://relay.local/on"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var created zones.Zone
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatalf("Decoding zone failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Expected an assigned id")
	}
	if created.Color != zones.DefaultColor {
		t.Errorf("Expected default color, got %q", created.Color)
	}
	if created.Enabled {
		t.Error("New zones should start disabled")
	}

	resp, body = env.do(t, http.MethodGet, "/api/zones", "")
	var list []zones.Zone
	if err := json.Unmarshal(body, &list); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("Listing zones failed: %d %v", resp.StatusCode, err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("Expected the created zone in the list, got %+v", list)
	}

	resp, body = env.do(t, http.MethodPut, "/api/zones/"+created.ID, `{"title":"Front door"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on update, got %d: %s", resp.StatusCode, body)
	}
	var updated zones.Zone
	json.Unmarshal(body, &updated)
	if updated.Title != "Front door" || updated.Width != 40 {
		t.Errorf("Unexpected zone after update: %+v", updated)
	}

	resp, body = env.do(t, http.MethodPost, "/api/zones/"+created.ID+"/enable", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on enable, got %d: %s", resp.StatusCode, body)
	}
	if env.mgr.State() != surveillance.Armed {
		t.Errorf("Expected Armed after enabling, got %s", env.mgr.State())
	}

	resp, _ = env.do(t, http.MethodPost, "/api/zones/"+created.ID+"/disable", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on disable, got %d", resp.StatusCode)
	}
	if env.mgr.State() != surveillance.Idle {
		t.Errorf("Expected Idle after disabling, got %s", env.mgr.State())
	}

	saved, err := env.store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(saved.Zones) != 1 || saved.Zones[0].Title != "Front door" {
		t.Errorf("Expected mutations to be persisted, got %+v", saved.Zones)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/zones/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/api/zones/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestZoneErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad json", http.MethodPost, "/api/zones", `{"x":`, http.StatusBadRequest},
		{"missing command", http.MethodPost, "/api/zones", `{"width":10,"height":10}`, http.StatusBadRequest},
		{"zero width", http.MethodPost, "/api/zones", `{"width":0,"height":10,"command":"http://a/b"}`, http.StatusBadRequest},
		{"bad color", http.MethodPost, "/api/zones", `{"width":5,"height":5,"color":"blue-ish","command":"http://a/b"}`, http.StatusBadRequest},
		{"unknown zone", http.MethodGet, "/api/zones/nope", "", http.StatusNotFound},
		{"update unknown", http.MethodPut, "/api/zones/nope", `{"title":"x"}`, http.StatusNotFound},
		{"enable unknown", http.MethodPost, "/api/zones/nope/enable", "", http.StatusNotFound},
		{"test unknown", http.MethodPost, "/api/zones/nope/test", "", http.StatusNotFound},
		{"zones patch", http.MethodPatch, "/api/zones", "", http.StatusMethodNotAllowed},
		{"enable via get", http.MethodGet, "/api/zones/nope/enable", "", http.StatusMethodNotAllowed},
		{"status post", http.MethodPost, "/api/status", "", http.StatusMethodNotAllowed},
		{"state get", http.MethodGet, "/api/state", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("Expected %d, got %d: %s", tt.want, resp.StatusCode, body)
			}
			var payload map[string]string
			if err := json.Unmarshal(body, &payload); err != nil || payload["error"] == "" {
				t.Errorf("Expected a JSON error body, got %q", body)
			}
		})
	}

	if env.registry.Len() != 0 {
		t.Errorf("Rejected zones must not be stored, have %d", env.registry.Len())
	}
}

func TestZoneTestSendsCommand(t *testing.T) {
	env := newTestEnv(t, Options{})
	id, err := env.registry.Add(zones.Zone{Width: 5, Height: 5, Command: "http://relay.local/pulse"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	resp, body := env.do(t, http.MethodPost, "/api/zones/"+id+"/test", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	if env.cmd.count() != 1 {
		t.Errorf("Expected one command, got %d", env.cmd.count())
	}

	env.cmd.mu.Lock()
	env.cmd.err = errors.New("relay offline")
	env.cmd.mu.Unlock()

	resp, _ = env.do(t, http.MethodPost, "/api/zones/"+id+"/test", "")
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected 502 when the command fails, got %d", resp.StatusCode)
	}
}

func TestCameraLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.do(t, http.MethodPost, "/api/cameras", `{"name":"porch","address":"192.168.1.20:8080","interval_ms":20}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", resp.StatusCode, body)
	}
	var cam config.CameraConfig
	json.Unmarshal(body, &cam)
	if cam.ID != "porch" || !cam.Enabled {
		t.Fatalf("Unexpected camera: %+v", cam)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/cameras", `{"name":"porch","address":"192.168.1.21"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a duplicate camera, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodPost, "/api/cameras", `{"name":"attic"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 without an address, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/cameras/porch", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for a known camera, got %d", resp.StatusCode)
	}

	resp, body = env.do(t, http.MethodGet, "/api/status", "")
	var status surveillance.Status
	if err := json.Unmarshal(body, &status); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("Status failed: %d %v", resp.StatusCode, err)
	}
	if len(status.Cameras) != 1 || !status.Cameras[0].Running {
		t.Errorf("Expected one running camera, got %+v", status.Cameras)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/cameras/ghost/live", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown live stream, got %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/api/cameras/porch", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 on delete, got %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodDelete, "/api/cameras/porch", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", resp.StatusCode)
	}
}

func TestConcurrentCameraCreate(t *testing.T) {
	env := newTestEnv(t, Options{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "cam" + strconv.Itoa(i)
			body := `{"name":"` + name + `","address":"10.0.0.` + strconv.Itoa(i+1) + `","interval_ms":50}`
			resp, err := http.Post(env.ts.URL+"/api/cameras", "application/json", strings.NewReader(body))
			if err != nil {
				errs <- err.Error()
				return
			}
			defer resp.Body.Close()
			var cam config.CameraConfig
			if err := json.NewDecoder(resp.Body).Decode(&cam); err != nil {
				errs <- err.Error()
				return
			}
			if resp.StatusCode != http.StatusCreated || cam.ID != name {
				errs <- fmt.Sprintf("POST %s answered %d with camera %q", name, resp.StatusCode, cam.ID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	if got := len(env.mgr.Cameras()); got != n {
		t.Errorf("Expected %d cameras, got %d", n, got)
	}
}

func TestConfigUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	env := newTestEnv(t, Options{ConfigPath: path})

	motionCfg := env.cfg.Get().Motion
	motionCfg.MinArea = 250
	body, _ := json.Marshal(map[string]interface{}{"motion": motionCfg, "log_level": "debug"})

	resp, data := env.do(t, http.MethodPut, "/api/config", string(body))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, data)
	}
	if got := env.cfg.Get().Motion.MinArea; got != 250 {
		t.Errorf("Expected min_area 250, got %d", got)
	}

	reloaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Reloading saved config failed: %v", err)
	}
	if reloaded.Get().Motion.MinArea != 250 || reloaded.Get().LogLevel != "debug" {
		t.Errorf("Saved config does not carry the update: %+v", reloaded.Get().Motion)
	}

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"motion":`},
		{"bad log level", `{"log_level":"loud"}`},
		{"negative min area", `{"motion":{"backend":"native","interval_ms":83,"diff_threshold":30,"min_area":-1}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodPut, "/api/config", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d", resp.StatusCode)
			}
			if got := env.cfg.Get().Motion.MinArea; got != 250 {
				t.Errorf("Rejected update changed min_area to %d", got)
			}
		})
	}
}

func TestHistory(t *testing.T) {
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	defer db.Close()

	for i, zone := range []string{"z1", "z2", "z3"} {
		e := events.New(events.ZoneTriggered)
		e.ZoneID = zone
		e.Time = time.Date(2026, 1, 1, 12, 0, i, 0, time.UTC)
		if err := db.Record(context.Background(), e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	env := newTestEnv(t, Options{History: db})

	resp, body := env.do(t, http.MethodGet, "/api/history?limit=2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", resp.StatusCode, body)
	}
	var got []events.Event
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Decoding history failed: %v", err)
	}
	if len(got) != 2 || got[0].ZoneID != "z3" {
		t.Errorf("Expected the two newest entries, got %+v", got)
	}

	resp, _ = env.do(t, http.MethodGet, "/api/history?limit=zero", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad limit, got %d", resp.StatusCode)
	}

	bare := newTestEnv(t, Options{})
	resp, _ = bare.do(t, http.MethodGet, "/api/history", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 without a history store, got %d", resp.StatusCode)
	}
}

func TestClearState(t *testing.T) {
	env := newTestEnv(t, Options{})
	if _, err := env.registry.Add(zones.Zone{Width: 5, Height: 5, Command: "http://a/b", Enabled: true}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	resp, _ := env.do(t, http.MethodDelete, "/api/state", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if env.registry.Len() != 0 {
		t.Errorf("Expected no zones, have %d", env.registry.Len())
	}
	if env.mgr.State() != surveillance.Idle {
		t.Errorf("Expected Idle after clearing, got %s", env.mgr.State())
	}
	saved, err := env.store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !saved.Empty() {
		t.Errorf("Expected an empty saved state, got %+v", saved)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, Options{})

	req, _ := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/zones", bytes.NewReader(nil))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}
