package trigger

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

// ErrClosed is returned by Fire after Close.
var ErrClosed = errors.New("dispatcher closed")

// Options tunes the dispatcher.
type Options struct {
	Workers   int
	QueueSize int
	// Cooldown is the minimum time between two dispatches of one zone.
	Cooldown time.Duration
	// Timeout bounds a single command.
	Timeout time.Duration
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 32
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}
}

// Trigger is one scheduled command dispatch.
type Trigger struct {
	Camera string
	Zone   zones.Zone
	Region motion.Region
	At     time.Time
}

// Record is the dispatch history of one zone.
type Record struct {
	ZoneID       string    `json:"zone_id"`
	InFlight     bool      `json:"in_flight"`
	LastDispatch time.Time `json:"last_dispatch"`
	Dispatches   int       `json:"dispatches"`
	Failures     int       `json:"failures"`
	Dropped      int       `json:"dropped"`

	// forgotten marks a removed zone whose dispatch is still running.
	forgotten bool
}

// Dispatcher runs zone commands on a fixed worker pool fed by a bounded
// queue. Enqueueing never blocks; a full queue drops the dispatch.
type Dispatcher struct {
	cmd  Commander
	pub  events.Publisher
	opts Options

	mu      sync.Mutex
	queue   chan Trigger
	records map[string]*Record
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewDispatcher starts the worker pool. pub may be nil.
func NewDispatcher(cmd Commander, pub events.Publisher, opts Options) *Dispatcher {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cmd:     cmd,
		pub:     pub,
		opts:    opts,
		queue:   make(chan Trigger, opts.QueueSize),
		records: make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}

	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	log.Info().Int("workers", opts.Workers).Int("queue", opts.QueueSize).Msg("Trigger dispatcher started")
	return d
}

// Evaluate tests the significant regions of one cycle against the zone
// snapshot. Each enabled zone in scope for camera is dispatched at most once,
// for the first region that intersects it. It returns the triggers that were
// queued.
func (d *Dispatcher) Evaluate(camera string, regions []motion.Region, zs []zones.Zone) []Trigger {
	if len(regions) == 0 {
		return nil
	}

	var queued []Trigger
	for _, z := range zs {
		if !z.Enabled || !z.AppliesTo(camera) {
			continue
		}
		for _, r := range regions {
			if !Intersects(r, z) {
				continue
			}
			t := Trigger{Camera: camera, Zone: z, Region: r, At: d.now()}
			if d.enqueue(t) {
				queued = append(queued, t)
			}
			break
		}
	}
	return queued
}

func (d *Dispatcher) enqueue(t Trigger) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	rec := d.recordLocked(t.Zone.ID)
	if rec.InFlight {
		log.Debug().Str("zone", t.Zone.ID).Msg("Previous dispatch still in flight, skipping")
		return false
	}
	if d.opts.Cooldown > 0 && !rec.LastDispatch.IsZero() && t.At.Sub(rec.LastDispatch) < d.opts.Cooldown {
		log.Debug().Str("zone", t.Zone.ID).Dur("cooldown", d.opts.Cooldown).Msg("Zone cooling down, skipping")
		return false
	}

	select {
	case d.queue <- t:
	default:
		rec.Dropped++
		log.Warn().Str("zone", t.Zone.ID).Str("camera", t.Camera).Msg("Trigger queue full, dropping dispatch")
		return false
	}

	rec.InFlight = true
	rec.LastDispatch = t.At
	d.publish(events.Event{
		Type:    events.ZoneTriggered,
		Camera:  t.Camera,
		ZoneID:  t.Zone.ID,
		Title:   t.Zone.Title,
		Command: t.Zone.Command,
		Regions: []motion.Region{t.Region},
	})
	return true
}

func (d *Dispatcher) recordLocked(id string) *Record {
	rec, ok := d.records[id]
	if !ok {
		rec = &Record{ZoneID: id}
		d.records[id] = rec
	}
	return rec
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for t := range d.queue {
		d.run(t)
	}
}

func (d *Dispatcher) run(t Trigger) {
	ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
	err := d.cmd.Send(ctx, t.Zone.Command)
	cancel()

	d.mu.Lock()
	rec := d.recordLocked(t.Zone.ID)
	rec.InFlight = false
	if err != nil {
		rec.Failures++
	} else {
		rec.Dispatches++
	}
	if rec.forgotten {
		delete(d.records, t.Zone.ID)
	}
	d.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("zone", t.Zone.ID).Str("command", t.Zone.Command).Msg("Zone command failed")
		d.publish(events.Event{
			Type:    events.ZoneTriggerFailed,
			Camera:  t.Camera,
			ZoneID:  t.Zone.ID,
			Title:   t.Zone.Title,
			Command: t.Zone.Command,
			Error:   err.Error(),
		})
		return
	}
	log.Info().Str("zone", t.Zone.ID).Str("camera", t.Camera).Str("command", t.Zone.Command).Msg("Zone command sent")
}

// Fire sends z's command immediately on the calling goroutine, ignoring
// de-duplication and cooldown.
func (d *Dispatcher) Fire(ctx context.Context, z zones.Zone) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	d.publish(events.Event{Type: events.ZoneTriggered, ZoneID: z.ID, Title: z.Title, Command: z.Command})
	if err := d.cmd.Send(ctx, z.Command); err != nil {
		d.publish(events.Event{Type: events.ZoneTriggerFailed, ZoneID: z.ID, Title: z.Title, Command: z.Command, Error: err.Error()})
		return err
	}
	log.Info().Str("zone", z.ID).Str("command", z.Command).Msg("Zone command sent manually")
	return nil
}

// Forget drops the record of a zone, e.g. after it was removed. A record with
// a dispatch in flight is hidden now and dropped when the dispatch finishes,
// so the zone stays de-duplicated until then.
func (d *Dispatcher) Forget(zoneID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[zoneID]
	if !ok {
		return
	}
	if rec.InFlight {
		rec.forgotten = true
		return
	}
	delete(d.records, zoneID)
}

// Records returns a copy of all dispatch records ordered by zone id.
func (d *Dispatcher) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, 0, len(d.records))
	for _, r := range d.records {
		if r.forgotten {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out
}

// Pending returns the number of queued dispatches.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting dispatches and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	log.Info().Msg("Trigger dispatcher stopped")
}

func (d *Dispatcher) publish(e events.Event) {
	if d.pub != nil {
		d.pub.Publish(e)
	}
}
