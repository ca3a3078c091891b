// Package zones holds the rectangular trigger zones and their commands.
package zones

import (
	"errors"
	"fmt"
	"image"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultColor is used for zones created without a color.
const DefaultColor = "#ff0000"

var (
	ErrNotFound    = errors.New("zone not found")
	ErrInvalidZone = errors.New("invalid zone")
)

// Zone is an axis-aligned rectangle in frame pixel coordinates that fires
// Command when significant motion intersects it.
type Zone struct {
	ID        string    `yaml:"id" json:"id"`
	CameraID  string    `yaml:"camera_id,omitempty" json:"camera_id,omitempty"`
	X         int       `yaml:"x" json:"x"`
	Y         int       `yaml:"y" json:"y"`
	Width     int       `yaml:"width" json:"width"`
	Height    int       `yaml:"height" json:"height"`
	Color     string    `yaml:"color" json:"color"`
	Title     string    `yaml:"title" json:"title"`
	Command   string    `yaml:"command" json:"command"`
	Enabled   bool      `yaml:"enabled" json:"enabled"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

// Rect returns the zone as an image.Rectangle.
func (z Zone) Rect() image.Rectangle {
	return image.Rect(z.X, z.Y, z.X+z.Width, z.Y+z.Height)
}

// AppliesTo reports whether the zone watches the given camera. Zones without
// a camera apply to every camera.
func (z Zone) AppliesTo(camera string) bool {
	return z.CameraID == "" || z.CameraID == camera
}

// Update is a partial modification. Nil fields are left unchanged.
type Update struct {
	CameraID *string `json:"camera_id,omitempty"`
	X        *int    `json:"x,omitempty"`
	Y        *int    `json:"y,omitempty"`
	Width    *int    `json:"width,omitempty"`
	Height   *int    `json:"height,omitempty"`
	Color    *string `json:"color,omitempty"`
	Title    *string `json:"title,omitempty"`
	Command  *string `json:"command,omitempty"`
	Enabled  *bool   `json:"enabled,omitempty"`
}

func (u Update) apply(z *Zone) {
	if u.CameraID != nil {
		z.CameraID = *u.CameraID
	}
	if u.X != nil {
		z.X = *u.X
	}
	if u.Y != nil {
		z.Y = *u.Y
	}
	if u.Width != nil {
		z.Width = *u.Width
	}
	if u.Height != nil {
		z.Height = *u.Height
	}
	if u.Color != nil {
		z.Color = *u.Color
	}
	if u.Title != nil {
		z.Title = *u.Title
	}
	if u.Command != nil {
		z.Command = *u.Command
	}
	if u.Enabled != nil {
		z.Enabled = *u.Enabled
	}
}

// ChangeKind names what happened to the registry.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Updated  ChangeKind = "updated"
	Removed  ChangeKind = "removed"
	Replaced ChangeKind = "replaced"
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind ChangeKind
	// Zone is the zone after the change, or the removed zone. Empty for Replaced.
	Zone     Zone
	Armed    bool
	WasArmed bool
}

// Registry is the owned, concurrency-safe set of zones.
type Registry struct {
	// writeMu serializes mutations so subscribers see changes in order.
	writeMu sync.Mutex

	mu    sync.RWMutex
	zones map[string]*Zone
	order []string

	subMu       sync.RWMutex
	subscribers []func(Change)

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		zones: make(map[string]*Zone),
		now:   time.Now,
	}
}

// Normalize validates z and returns it in canonical form: extents made
// positive, color parsed and re-encoded.
func Normalize(z Zone) (Zone, error) {
	if z.Width < 0 {
		z.X += z.Width
		z.Width = -z.Width
	}
	if z.Height < 0 {
		z.Y += z.Height
		z.Height = -z.Height
	}
	if z.Width == 0 || z.Height == 0 {
		return z, fmt.Errorf("%w: zero extent %dx%d", ErrInvalidZone, z.Width, z.Height)
	}

	if z.Command == "" {
		return z, fmt.Errorf("%w: command is required", ErrInvalidZone)
	}
	u, err := url.Parse(z.Command)
	if err != nil {
		return z, fmt.Errorf("%w: command: %v", ErrInvalidZone, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return z, fmt.Errorf("%w: command must be an absolute http(s) URL, got %q", ErrInvalidZone, z.Command)
	}

	if z.Color == "" {
		z.Color = DefaultColor
	} else {
		c, err := colorful.Hex(z.Color)
		if err != nil {
			return z, fmt.Errorf("%w: color %q: %v", ErrInvalidZone, z.Color, err)
		}
		z.Color = c.Hex()
	}
	return z, nil
}

// Add validates and stores z. An empty ID is assigned a fresh UUID.
func (r *Registry) Add(z Zone) (string, error) {
	z, err := Normalize(z)
	if err != nil {
		return "", err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	if z.ID == "" {
		z.ID = uuid.NewString()
	}
	if _, ok := r.zones[z.ID]; ok {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: duplicate id %s", ErrInvalidZone, z.ID)
	}
	if z.CreatedAt.IsZero() {
		z.CreatedAt = r.now()
	}
	was := r.armedLocked()
	r.zones[z.ID] = &z
	r.order = append(r.order, z.ID)
	change := Change{Kind: Added, Zone: z, WasArmed: was, Armed: r.armedLocked()}
	r.mu.Unlock()

	r.notify(change)
	return z.ID, nil
}

// Update applies a partial change to the zone with the given id.
func (r *Registry) Update(id string, u Update) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	cur, ok := r.zones[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := *cur
	u.apply(&next)
	next, err := Normalize(next)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	was := r.armedLocked()
	*cur = next
	change := Change{Kind: Updated, Zone: next, WasArmed: was, Armed: r.armedLocked()}
	r.mu.Unlock()

	r.notify(change)
	return nil
}

// SetEnabled arms or disarms a single zone.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	return r.Update(id, Update{Enabled: &enabled})
}

// Remove deletes the zone with the given id.
func (r *Registry) Remove(id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	z, ok := r.zones[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	was := r.armedLocked()
	delete(r.zones, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	change := Change{Kind: Removed, Zone: *z, WasArmed: was, Armed: r.armedLocked()}
	r.mu.Unlock()

	r.notify(change)
	return nil
}

// Get returns a copy of the zone with the given id.
func (r *Registry) Get(id string) (Zone, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	z, ok := r.zones[id]
	if !ok {
		return Zone{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *z, nil
}

// Snapshot returns a copy of all zones in creation order. The result is
// never affected by later mutations.
func (r *Registry) Snapshot() []Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Zone, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.zones[id])
	}
	return out
}

// Len returns the number of zones.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Armed reports whether at least one zone is enabled.
func (r *Registry) Armed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.armedLocked()
}

func (r *Registry) armedLocked() bool {
	for _, z := range r.zones {
		if z.Enabled {
			return true
		}
	}
	return false
}

// Replace swaps the whole set for zs. Nothing changes if any zone is invalid.
func (r *Registry) Replace(zs []Zone) error {
	next := make(map[string]*Zone, len(zs))
	order := make([]string, 0, len(zs))
	now := r.now()
	for i, z := range zs {
		z, err := Normalize(z)
		if err != nil {
			return fmt.Errorf("zone %d: %w", i, err)
		}
		if z.ID == "" {
			z.ID = uuid.NewString()
		}
		if _, dup := next[z.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidZone, z.ID)
		}
		if z.CreatedAt.IsZero() {
			z.CreatedAt = now
		}
		next[z.ID] = &z
		order = append(order, z.ID)
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.Lock()
	was := r.armedLocked()
	r.zones = next
	r.order = order
	change := Change{Kind: Replaced, WasArmed: was, Armed: r.armedLocked()}
	r.mu.Unlock()

	r.notify(change)
	return nil
}

// Subscribe registers fn to be called after every mutation. Callbacks run
// synchronously on the mutating goroutine and must not modify the registry.
func (r *Registry) Subscribe(fn func(Change)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Registry) notify(c Change) {
	r.subMu.RLock()
	subs := make([]func(Change), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(c)
	}
}
