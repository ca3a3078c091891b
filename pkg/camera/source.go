// Package camera fetches still snapshots from network cameras.
package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

const maxSnapshotBytes = 16 << 20

var (
	// ErrNoFrame wraps every failure to produce a frame.
	ErrNoFrame = errors.New("no frame")
	// ErrInvalidAddress is returned for addresses that cannot name a snapshot URL.
	ErrInvalidAddress = errors.New("invalid camera address")
)

// Config holds per-source options.
type Config struct {
	// SetupURL is requested once before the first poll, if set.
	SetupURL string
	Timeout  time.Duration
	// FrameWidth downscales wider frames, keeping the aspect ratio. 0 keeps
	// the native size.
	FrameWidth int
	Client     *http.Client
}

// Snapshot is one fetched and decoded image.
type Snapshot struct {
	Data      []byte
	Frame     *image.NRGBA
	FetchedAt time.Time
}

// JPEG returns the snapshot as JPEG bytes, re-encoding if the camera served
// another format.
func (s *Snapshot) JPEG() ([]byte, error) {
	if len(s.Data) > 2 && s.Data[0] == 0xFF && s.Data[1] == 0xD8 {
		return s.Data, nil
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, s.Frame, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Info describes the state of a source.
type Info struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Frames    int64     `json:"frames"`
	Failures  int64     `json:"failures"`
	LastFetch time.Time `json:"last_fetch"`
	LastError string    `json:"last_error,omitempty"`
}

// Source polls a camera's snapshot endpoint.
type Source struct {
	Name string
	URL  string

	cfg    Config
	client *http.Client

	mu        sync.RWMutex
	width     int
	height    int
	frames    int64
	failures  int64
	lastFetch time.Time
	lastError error
}

// SnapshotURL resolves a camera address. A bare host[:port] maps to
// http://host[:port]/snapshot.jpg; a full http(s) URL is used as is.
func SnapshotURL(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	raw := address
	if !strings.Contains(address, "://") {
		raw = "http://" + address
		if !strings.Contains(address, "/") {
			raw += "/snapshot.jpg"
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, address)
	}
	return u.String(), nil
}

func NewSource(name, address string, cfg Config) (*Source, error) {
	u, err := SnapshotURL(address)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Source{
		Name:   name,
		URL:    u,
		cfg:    cfg,
		client: client,
	}, nil
}

// Setup sends the configured setup request. It is a no-op without SetupURL.
func (s *Source) Setup(ctx context.Context) error {
	if s.cfg.SetupURL == "" {
		return nil
	}

	log.Info().Str("camera", s.Name).Str("url", s.cfg.SetupURL).Msg("Sending camera setup command")
	body, err := s.get(ctx, s.cfg.SetupURL)
	if err != nil {
		return fmt.Errorf("setup command failed: %w", err)
	}
	body.Close()
	return nil
}

// Poll fetches and decodes one snapshot.
func (s *Source) Poll(ctx context.Context) (*Snapshot, error) {
	snap, err := s.poll(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		s.lastError = err
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}
	b := snap.Frame.Bounds()
	s.width, s.height = b.Dx(), b.Dy()
	s.frames++
	s.lastFetch = snap.FetchedAt
	s.lastError = nil
	return snap, nil
}

func (s *Source) poll(ctx context.Context) (*Snapshot, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	body, err := s.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty snapshot")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	var frame *image.NRGBA
	if w := s.cfg.FrameWidth; w > 0 && img.Bounds().Dx() > w {
		frame = imaging.Resize(img, w, 0, imaging.Linear)
	} else {
		frame = imaging.Clone(img)
	}

	return &Snapshot{Data: data, Frame: frame, FetchedAt: time.Now()}, nil
}

func (s *Source) get(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func (s *Source) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		Name:      s.Name,
		URL:       s.URL,
		Width:     s.width,
		Height:    s.height,
		Frames:    s.frames,
		Failures:  s.failures,
		LastFetch: s.lastFetch,
	}
	if s.lastError != nil {
		info.LastError = s.lastError.Error()
	}
	return info
}
