package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSnapshotURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "192.168.1.20", want: "http://192.168.1.20/snapshot.jpg"},
		{in: "cam.local:8080", want: "http://cam.local:8080/snapshot.jpg"},
		{in: " 10.0.0.5 ", want: "http://10.0.0.5/snapshot.jpg"},
		{in: "10.0.0.5/cgi-bin/snap.jpg", want: "http://10.0.0.5/cgi-bin/snap.jpg"},
		{in: "https://cam.example.com/still.jpg?q=1", want: "https://cam.example.com/still.jpg?q=1"},
		{in: "", wantErr: true},
		{in: "ftp://cam/snap.jpg", wantErr: true},
		{in: "http:///snap.jpg", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SnapshotURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("Expected ErrInvalidAddress, got %v (%s)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPollDecodesAndBustsCache(t *testing.T) {
	data := encodePNG(t, 64, 48)
	var lastQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastQuery = r.URL.Query().Get("timestamp")
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	src, err := NewSource("cam1", srv.URL+"/snapshot.png", Config{})
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	snap, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if snap.Frame.Bounds() != image.Rect(0, 0, 64, 48) {
		t.Errorf("Unexpected bounds %v", snap.Frame.Bounds())
	}
	if lastQuery == "" {
		t.Error("Expected timestamp query parameter")
	}

	info := src.Info()
	if info.Frames != 1 || info.Width != 64 || info.Height != 48 || info.LastError != "" {
		t.Errorf("Unexpected info %+v", info)
	}

	jpg, err := snap.JPEG()
	if err != nil {
		t.Fatalf("JPEG failed: %v", err)
	}
	if _, err := imaging.Decode(bytes.NewReader(jpg)); err != nil {
		t.Errorf("Re-encoded JPEG does not decode: %v", err)
	}
}

func TestPollDownscales(t *testing.T) {
	data := encodePNG(t, 640, 480)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	src, _ := NewSource("cam1", srv.URL+"/s", Config{FrameWidth: 160})
	snap, err := src.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if snap.Frame.Bounds().Dx() != 160 || snap.Frame.Bounds().Dy() != 120 {
		t.Errorf("Expected 160x120, got %v", snap.Frame.Bounds())
	}
}

func TestPollFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "down", http.StatusServiceUnavailable) }},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
		{"not an image", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("hello")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src, _ := NewSource("cam1", srv.URL+"/s", Config{})
			if _, err := src.Poll(context.Background()); !errors.Is(err, ErrNoFrame) {
				t.Errorf("Expected ErrNoFrame, got %v", err)
			}
			if info := src.Info(); info.Failures != 1 || info.LastError == "" {
				t.Errorf("Expected failure recorded, got %+v", info)
			}
		})
	}
}

func TestPollCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	src, _ := NewSource("cam1", srv.URL+"/s", Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Poll(ctx); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame on canceled context, got %v", err)
	}
}

func TestSetup(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.Contains(r.URL.RawQuery, "post_snapshot_conf") {
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, _ := NewSource("cam1", srv.URL+"/s", Config{SetupURL: srv.URL + "/cgi-bin/snapshot.cgi?post_snapshot_conf&resolution=480x300"})
	if err := src.Setup(context.Background()); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	bad, _ := NewSource("cam1", srv.URL+"/s", Config{SetupURL: srv.URL + "/nope"})
	if err := bad.Setup(context.Background()); err == nil {
		t.Error("Expected setup error on 404")
	}

	none, _ := NewSource("cam1", srv.URL+"/s", Config{})
	if err := none.Setup(context.Background()); err != nil {
		t.Errorf("Expected no-op setup, got %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("Expected 2 setup requests, got %d", hits.Load())
	}
}
