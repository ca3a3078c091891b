// Package store persists zones and cameras between runs.
package store

import (
	"context"
	"fmt"

	"github.com/matthewidavis/ResponsiveBOXES/internal/config"
	"github.com/matthewidavis/ResponsiveBOXES/internal/events"
	"github.com/matthewidavis/ResponsiveBOXES/internal/logger"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

// State is everything that survives a restart.
type State struct {
	Zones   []zones.Zone          `yaml:"zones" json:"zones"`
	Cameras []config.CameraConfig `yaml:"cameras" json:"cameras"`
}

// Empty reports whether nothing has been saved yet.
func (s *State) Empty() bool {
	return s == nil || (len(s.Zones) == 0 && len(s.Cameras) == 0)
}

// Store loads and saves State. Load on a fresh store returns an empty State.
type Store interface {
	Load() (*State, error)
	Save(*State) error
	Close() error
}

// History keeps a log of trigger activity.
type History interface {
	Record(ctx context.Context, e events.Event) error
	Recent(ctx context.Context, limit int) ([]events.Event, error)
}

// Open returns the store selected by cfg.Driver.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "yaml":
		return NewYAML(cfg.Path), nil
	case "sqlite":
		return NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// recorded lists the event types kept in history. Per-frame events are left out.
var recorded = map[events.Type]bool{
	events.ZoneTriggered:     true,
	events.ZoneTriggerFailed: true,
	events.DetectorArmed:     true,
	events.DetectorIdle:      true,
}

// RecordEvents appends trigger activity from bus to h until ctx is done.
func RecordEvents(ctx context.Context, bus *events.Bus, h History) {
	l := logger.Component("history")
	ch, cancel := bus.Subscribe(128)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if !recorded[e.Type] {
				continue
			}
			if err := h.Record(ctx, e); err != nil {
				l.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to record event")
			}
		}
	}
}
