// Package trigger decides which zones fire for a detection cycle and sends
// their commands off the camera goroutines.
package trigger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matthewidavis/ResponsiveBOXES/internal/motion"
	"github.com/matthewidavis/ResponsiveBOXES/internal/zones"
)

// Commander sends a zone's command.
type Commander interface {
	Send(ctx context.Context, command string) error
}

// HTTPCommander sends commands as HTTP GET requests. Any non-2xx status is
// an error.
type HTTPCommander struct {
	Client *http.Client
}

func NewHTTPCommander(timeout time.Duration) *HTTPCommander {
	return &HTTPCommander{Client: &http.Client{Timeout: timeout}}
}

func (c *HTTPCommander) Send(ctx context.Context, command string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, command, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

// Intersects reports whether region and zone overlap. Rectangles that only
// share an edge do not intersect.
func Intersects(r motion.Region, z zones.Zone) bool {
	return r.X < z.X+z.Width &&
		r.X+r.Width > z.X &&
		r.Y < z.Y+z.Height &&
		r.Y+r.Height > z.Y
}
