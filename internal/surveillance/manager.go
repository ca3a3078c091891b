// Package surveillance runs one polling loop per camera and feeds detection
// results to the trigger dispatcher while the detector is armed.
package surveillance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hybridgroup/mjpeg"
	"github.com/rs/zerolog/log"

	"github.com/matthewidavis/ResponsiveBOXES/internal/config"
	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/health"
	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
	"github.com/matthewidavis/ResponsiveBOXES/internal/store"
	"github.com/matthewidavis/ResponsiveBOXES/internal/trigger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
	"github.com/matthewidavis/ResponsiveBOXES/pkg/camera"
)

var (
	ErrInvalidCamera  = errors.New("invalid camera")
	ErrCameraNotFound = errors.New("camera not found")
	ErrCameraExists   = errors.New("camera already exists")
	ErrNotRunning     = errors.New("camera is not running")
)

// State is the process-wide detector state.
type State string

const (
	Idle  State = "idle"
	Armed State = "armed"
)

// FrameSource produces snapshots for one camera.
type FrameSource interface {
	Setup(ctx context.Context) error
	Poll(ctx context.Context) (*camera.Snapshot, error)
	Info() camera.Info
}

// SourceFactory builds the frame source of a camera.
type SourceFactory func(cam config.CameraConfig, cfg config.Snapshot) (FrameSource, error)

// HTTPSources builds snapshot sources backed by camera.Source.
func HTTPSources(cam config.CameraConfig, cfg config.Snapshot) (FrameSource, error) {
	return camera.NewSource(cam.ID, cam.Address, camera.Config{
		SetupURL:   cam.SetupURL,
		Timeout:    time.Duration(cfg.Health.TimeoutSeconds) * time.Second,
		FrameWidth: cfg.Motion.FrameWidth,
	})
}

// Deps are the collaborators of a Manager. Events, Store and Sources are
// optional.
type Deps struct {
	Config     *config.Config
	Zones      *zones.Registry
	Dispatcher *trigger.Dispatcher
	Pipeline   motion.Pipeline
	Events     events.Publisher
	Store      store.Store
	Sources    SourceFactory
}

type Manager struct {
	cfg        *config.Config
	registry   *zones.Registry
	dispatcher *trigger.Dispatcher
	pipeline   motion.Pipeline
	events     events.Publisher
	store      store.Store
	newSource  SourceFactory

	mu       sync.RWMutex
	ctx      context.Context
	cameras  []config.CameraConfig
	monitors map[string]*CameraMonitor

	armed  atomic.Bool
	armGen atomic.Int64
	cycles atomic.Int64

	persistMu sync.Mutex

	healthChecker *health.Checker
	healthCache   map[string]health.CheckResult
	healthMu      sync.RWMutex
}

// CameraMonitor is the runtime state of one polling camera.
type CameraMonitor struct {
	Config   config.CameraConfig
	interval time.Duration
	source   FrameSource
	detector *motion.Detector
	live     *mjpeg.Stream

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inFlight atomic.Bool
	frames   atomic.Int64
	skipped  atomic.Int64
	failures atomic.Int64
	cycles   atomic.Int64

	// armGen is only touched by cycles, which never overlap.
	armGen int64

	mu         sync.RWMutex
	lastMotion time.Time
}

func NewManager(d Deps) *Manager {
	if d.Sources == nil {
		d.Sources = HTTPSources
	}
	if d.Pipeline == nil {
		d.Pipeline = motion.Native{}
	}
	snap := d.Config.Get()
	log.Info().
		Int("health_check_interval", snap.Health.CheckIntervalSeconds).
		Int("health_timeout", snap.Health.TimeoutSeconds).
		Msg("Health config loaded")

	m := &Manager{
		cfg:           d.Config,
		registry:      d.Zones,
		dispatcher:    d.Dispatcher,
		pipeline:      d.Pipeline,
		events:        d.Events,
		store:         d.Store,
		newSource:     d.Sources,
		ctx:           context.Background(),
		monitors:      make(map[string]*CameraMonitor),
		healthChecker: health.NewChecker(time.Duration(snap.Health.TimeoutSeconds) * time.Second),
		healthCache:   make(map[string]health.CheckResult),
	}
	m.armed.Store(d.Zones.Armed())
	d.Zones.Subscribe(m.onZoneChange)
	return m
}

// Start launches a monitor for every enabled camera and the health loop.
// Cameras whose setup fails are kept in the list but not started.
func (m *Manager) Start(ctx context.Context, cams []config.CameraConfig) error {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	for _, cam := range cams {
		if _, err := m.AddCamera(cam); err != nil {
			if errors.Is(err, ErrInvalidCamera) || errors.Is(err, ErrCameraExists) {
				return err
			}
			log.Error().Str("camera", cam.ID).Err(err).Msg("Failed to start monitor")
			// Keep it listed so a saved camera survives a restart while offline.
			if norm, nerr := normalizeCamera(cam); nerr == nil {
				m.mu.Lock()
				m.cameras = append(m.cameras, norm)
				m.mu.Unlock()
			}
		}
	}

	go m.runHealthChecks(ctx)

	log.Info().Int("cameras", len(cams)).Str("state", string(m.State())).Msg("Surveillance started")
	return nil
}

// Stop stops every monitor and waits for in-flight cycles.
func (m *Manager) Stop() {
	m.mu.Lock()
	monitors := make([]*CameraMonitor, 0, len(m.monitors))
	for id, mon := range m.monitors {
		monitors = append(monitors, mon)
		delete(m.monitors, id)
	}
	m.mu.Unlock()

	for _, mon := range monitors {
		log.Info().Str("camera", mon.Config.ID).Msg("Stopping monitor")
		m.stopMonitor(mon)
	}
}

func normalizeCamera(cam config.CameraConfig) (config.CameraConfig, error) {
	cam.ID = strings.TrimSpace(cam.ID)
	cam.Name = strings.TrimSpace(cam.Name)
	if cam.ID == "" {
		cam.ID = cam.Name
	}
	if cam.ID == "" {
		cam.ID = uuid.NewString()
	}
	if cam.Name == "" {
		cam.Name = cam.ID
	}
	if _, err := camera.SnapshotURL(cam.Address); err != nil {
		return cam, fmt.Errorf("%w: %v", ErrInvalidCamera, err)
	}
	if cam.IntervalMs < 0 {
		return cam, fmt.Errorf("%w: negative interval", ErrInvalidCamera)
	}
	return cam, nil
}

// AddCamera registers cam and starts polling it if enabled. It returns the
// camera as stored, with its ID and name filled in. If the camera's setup
// request fails the camera is not added.
func (m *Manager) AddCamera(cam config.CameraConfig) (config.CameraConfig, error) {
	cam, err := normalizeCamera(cam)
	if err != nil {
		return cam, err
	}

	m.mu.Lock()
	for _, c := range m.cameras {
		if c.ID == cam.ID {
			m.mu.Unlock()
			return cam, fmt.Errorf("%w: %s", ErrCameraExists, cam.ID)
		}
	}
	ctx := m.ctx
	m.mu.Unlock()

	var mon *CameraMonitor
	if cam.Enabled {
		mon, err = m.newMonitor(ctx, cam)
		if err != nil {
			return cam, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.cameras {
		if c.ID == cam.ID {
			if mon != nil {
				go m.stopMonitor(mon)
			}
			return cam, fmt.Errorf("%w: %s", ErrCameraExists, cam.ID)
		}
	}
	m.cameras = append(m.cameras, cam)
	if mon != nil {
		m.monitors[cam.ID] = mon
		mon.wg.Add(1)
		go m.monitorLoop(mon)
	}
	return cam, nil
}

// RemoveCamera stops the camera's monitor, waits for its in-flight cycle and
// forgets the camera.
func (m *Manager) RemoveCamera(id string) error {
	m.mu.Lock()
	idx := -1
	for i, c := range m.cameras {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	m.cameras = append(m.cameras[:idx], m.cameras[idx+1:]...)
	mon := m.monitors[id]
	delete(m.monitors, id)
	m.mu.Unlock()

	if mon != nil {
		m.stopMonitor(mon)
	}
	m.healthMu.Lock()
	delete(m.healthCache, id)
	m.healthMu.Unlock()

	log.Info().Str("camera", id).Msg("Camera removed")
	return nil
}

// Cameras returns the configured cameras in the order they were added.
func (m *Manager) Cameras() []config.CameraConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]config.CameraConfig, len(m.cameras))
	copy(out, m.cameras)
	return out
}

// Live returns the MJPEG stream of a running camera.
func (m *Manager) Live(id string) (http.Handler, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		for _, c := range m.cameras {
			if c.ID == id {
				return nil, fmt.Errorf("%w: %s", ErrNotRunning, id)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	return mon.live, nil
}

func (m *Manager) newMonitor(parent context.Context, cam config.CameraConfig) (*CameraMonitor, error) {
	cfg := m.cfg.Get()
	log.Info().Str("camera", cam.ID).Str("address", cam.Address).Msg("Starting monitor")

	src, err := m.newSource(cam, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCamera, err)
	}

	setupCtx, cancelSetup := context.WithTimeout(parent, time.Duration(cfg.Health.TimeoutSeconds)*time.Second)
	err = src.Setup(setupCtx)
	cancelSetup()
	if err != nil {
		return nil, fmt.Errorf("camera %s: %w", cam.ID, err)
	}

	ctx, cancel := context.WithCancel(parent)
	return &CameraMonitor{
		Config:   cam,
		interval: cfg.PollInterval(cam),
		source:   src,
		detector: motion.NewDetector(cam.ID, m.pipeline),
		live:     mjpeg.NewStream(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (m *Manager) monitorLoop(mon *CameraMonitor) {
	defer mon.wg.Done()
	log.Info().Str("camera", mon.Config.ID).Dur("interval", mon.interval).Msg("Monitor loop started")
	defer log.Info().Str("camera", mon.Config.ID).Msg("Monitor loop stopped")

	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	m.tick(mon)
	for {
		select {
		case <-mon.ctx.Done():
			return
		case <-ticker.C:
			m.tick(mon)
		}
	}
}

// tick starts a cycle unless the previous one for this camera is still
// running.
func (m *Manager) tick(mon *CameraMonitor) {
	if !mon.inFlight.CompareAndSwap(false, true) {
		mon.skipped.Add(1)
		return
	}
	mon.wg.Add(1)
	go func() {
		defer mon.wg.Done()
		defer mon.inFlight.Store(false)
		m.cycle(mon)
	}()
}

func (m *Manager) cycle(mon *CameraMonitor) {
	id := mon.Config.ID

	snap, err := mon.source.Poll(mon.ctx)
	if err != nil {
		if mon.ctx.Err() != nil {
			return
		}
		n := mon.failures.Add(1)
		log.Warn().Str("camera", id).Err(err).Int64("failures", n).Msg("Error fetching snapshot")
		m.publish(events.Event{Type: events.CameraFetchFailed, Camera: id, Error: err.Error()})
		return
	}
	mon.frames.Add(1)

	if jpg, err := snap.JPEG(); err == nil {
		mon.live.UpdateJPEG(jpg)
	}

	if !m.armed.Load() {
		return
	}
	if gen := m.armGen.Load(); mon.armGen != gen {
		mon.detector.Reset()
		mon.armGen = gen
	}

	res, err := mon.detector.Process(snap.Frame, m.cfg.Get().MotionSettings())
	if err != nil {
		if !errors.Is(err, motion.ErrClosed) {
			log.Error().Str("camera", id).Err(err).Msg("Detection failed")
		}
		return
	}
	if res.Bootstrap {
		return
	}
	m.cycles.Add(1)
	mon.cycles.Add(1)

	if !res.Motion() {
		return
	}

	mon.mu.Lock()
	mon.lastMotion = snap.FetchedAt
	mon.mu.Unlock()

	m.publish(events.Event{Type: events.MotionDetected, Camera: id, Regions: res.Significant})

	queued := m.dispatcher.Evaluate(id, res.Significant, m.registry.Snapshot())
	log.Debug().
		Str("camera", id).
		Int("regions", len(res.Significant)).
		Int("triggers", len(queued)).
		Msg("Motion detected")
}

func (m *Manager) stopMonitor(mon *CameraMonitor) {
	mon.cancel()
	mon.wg.Wait()
	mon.detector.Close()
}

func (m *Manager) onZoneChange(c zones.Change) {
	if c.Kind == zones.Removed {
		m.dispatcher.Forget(c.Zone.ID)
	}
	if c.Armed == c.WasArmed {
		return
	}

	if c.Armed {
		m.armGen.Add(1)
		m.armed.Store(true)
		log.Info().Msg("Detector armed")
		m.publish(events.New(events.DetectorArmed))
		return
	}

	m.armed.Store(false)
	m.mu.RLock()
	for _, mon := range m.monitors {
		mon.detector.Reset()
	}
	m.mu.RUnlock()
	log.Info().Msg("Detector idle")
	m.publish(events.New(events.DetectorIdle))
}

// State returns Armed while at least one zone is enabled.
func (m *Manager) State() State {
	if m.armed.Load() {
		return Armed
	}
	return Idle
}

// CycleCount returns the number of detection cycles that compared two frames.
func (m *Manager) CycleCount() int64 {
	return m.cycles.Load()
}

// CameraStatus is the runtime view of one camera.
type CameraStatus struct {
	config.CameraConfig
	Running    bool                `json:"running"`
	Interval   string              `json:"interval"`
	Frames     int64               `json:"frames"`
	Skipped    int64               `json:"skipped_ticks"`
	Failures   int64               `json:"failures"`
	Cycles     int64               `json:"cycles"`
	LastMotion time.Time           `json:"last_motion,omitempty"`
	Source     *camera.Info        `json:"source,omitempty"`
	Health     *health.CheckResult `json:"health,omitempty"`
}

// Status is the process-wide runtime view.
type Status struct {
	State    State            `json:"state"`
	Cycles   int64            `json:"cycles"`
	Zones    int              `json:"zones"`
	Pending  int              `json:"pending_dispatches"`
	Cameras  []CameraStatus   `json:"cameras"`
	Dispatch []trigger.Record `json:"dispatch"`
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	cams := make([]CameraStatus, 0, len(m.cameras))
	for _, c := range m.cameras {
		cs := CameraStatus{CameraConfig: c}
		if mon, ok := m.monitors[c.ID]; ok {
			info := mon.source.Info()
			cs.Running = true
			cs.Interval = mon.interval.String()
			cs.Frames = mon.frames.Load()
			cs.Skipped = mon.skipped.Load()
			cs.Failures = mon.failures.Load()
			cs.Cycles = mon.cycles.Load()
			cs.Source = &info
			mon.mu.RLock()
			cs.LastMotion = mon.lastMotion
			mon.mu.RUnlock()
		}
		m.healthMu.RLock()
		if res, ok := m.healthCache[c.ID]; ok {
			cs.Health = &res
		}
		m.healthMu.RUnlock()
		cams = append(cams, cs)
	}
	m.mu.RUnlock()

	return Status{
		State:    m.State(),
		Cycles:   m.CycleCount(),
		Zones:    m.registry.Len(),
		Pending:  m.dispatcher.Pending(),
		Cameras:  cams,
		Dispatch: m.dispatcher.Records(),
	}
}

// Persist saves the current zones and cameras.
func (m *Manager) Persist() error {
	if m.store == nil {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	return m.store.Save(&store.State{
		Zones:   m.registry.Snapshot(),
		Cameras: m.Cameras(),
	})
}

// ClearState removes every zone and camera and saves the empty state.
func (m *Manager) ClearState() error {
	if err := m.registry.Replace(nil); err != nil {
		return err
	}
	for _, c := range m.Cameras() {
		if err := m.RemoveCamera(c.ID); err != nil && !errors.Is(err, ErrCameraNotFound) {
			return err
		}
	}
	log.Info().Msg("Saved state cleared")
	return m.Persist()
}

func (m *Manager) publish(e events.Event) {
	if m.events != nil {
		m.events.Publish(e)
	}
}

// runHealthChecks performs periodic health checks on all configured cameras.
func (m *Manager) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(m.cfg.Get().Health.CheckIntervalSeconds) * time.Second)
	defer ticker.Stop()

	m.performHealthChecks(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.performHealthChecks(ctx)
		}
	}
}

func (m *Manager) performHealthChecks(ctx context.Context) {
	for _, cam := range m.Cameras() {
		u, err := camera.SnapshotURL(cam.Address)
		if err != nil {
			continue
		}
		result := m.healthChecker.Check(ctx, u)

		m.healthMu.Lock()
		m.healthCache[cam.ID] = result
		m.healthMu.Unlock()

		log.Debug().
			Str("camera", cam.ID).
			Bool("host_reachable", result.HostReachable).
			Bool("url_accessible", result.URLAccessible).
			Int64("response_time_ms", result.ResponseTime).
			Msg("Health check")
	}
}
