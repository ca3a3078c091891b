package motion

import (
	"image"
	"sync"

	"github.com/rs/zerolog/log"
)

// Result is the outcome of one detection cycle.
type Result struct {
	// Bootstrap is set when there was no previous frame to compare with.
	Bootstrap   bool
	Regions     []Region
	Significant []Region
}

// Motion reports whether the cycle found significant motion.
func (r Result) Motion() bool {
	return len(r.Significant) > 0
}

// Detector keeps the previous intensity buffer of a single camera.
type Detector struct {
	Camera   string
	pipeline Pipeline

	mu     sync.Mutex
	prev   *image.Gray
	closed bool
}

func NewDetector(camera string, pipeline Pipeline) *Detector {
	if pipeline == nil {
		pipeline = Native{}
	}
	return &Detector{
		Camera:   camera,
		pipeline: pipeline,
	}
}

// Process runs one cycle for frame. The retained buffer is swapped only
// after the regions have been extracted.
func (d *Detector) Process(frame image.Image, s Settings) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return Result{}, ErrClosed
	}

	gray := ToGrayscale(frame)
	if s.BlurSigma > 0 {
		gray = Blur(gray, s.BlurSigma)
	}

	if d.prev == nil {
		d.prev = gray
		log.Debug().Str("camera", d.Camera).Msg("No previous frame, storing first frame")
		return Result{Bootstrap: true}, nil
	}

	pb, cb := d.prev.Bounds(), gray.Bounds()
	if pb.Dx() != cb.Dx() || pb.Dy() != cb.Dy() {
		log.Info().
			Str("camera", d.Camera).
			Str("from", pb.Size().String()).
			Str("to", cb.Size().String()).
			Msg("Frame size changed, restarting comparison")
		d.prev = gray
		return Result{Bootstrap: true}, nil
	}

	regions, err := d.pipeline.Regions(d.prev, gray, s)
	d.prev = gray
	if err != nil {
		return Result{}, err
	}

	return Result{
		Regions:     regions,
		Significant: SignificantRegions(regions, s.MinArea),
	}, nil
}

// Primed reports whether a previous frame is retained.
func (d *Detector) Primed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prev != nil
}

// Reset drops the retained frame so the next Process bootstraps.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// Close releases the retained frame. Process fails with ErrClosed afterwards.
func (d *Detector) Close() {
	d.mu.Lock()
	d.prev = nil
	d.closed = true
	d.mu.Unlock()
}
