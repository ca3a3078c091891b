// Package motion turns consecutive camera frames into regions of change.
//
// The pipeline is grayscale conversion, absolute differencing against the
// previous frame of the same camera, binary thresholding and extraction of
// the outer connected regions of the thresholded mask.
package motion

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
)

const (
	DefaultDiffThreshold = 30
	DefaultMinArea       = 100
)

var (
	// ErrSizeMismatch is returned when two buffers of different size are compared.
	ErrSizeMismatch = errors.New("motion: buffer size mismatch")
	// ErrClosed is returned by a Detector after Close.
	ErrClosed = errors.New("motion: detector closed")
)

// Region is a connected block of changed pixels. The bounding box includes
// the extreme pixels, so a single pixel has Width and Height 1.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Area   int `json:"area"`
}

// Rect returns the region's bounding box as an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Settings are the tuning knobs of one detection cycle.
type Settings struct {
	DiffThreshold uint8
	MinArea       int
	BlurSigma     float64
	DilateRadius  float64
}

// DefaultSettings returns the reference tuning: threshold 30, area floor 100,
// no blur and no dilation.
func DefaultSettings() Settings {
	return Settings{
		DiffThreshold: DefaultDiffThreshold,
		MinArea:       DefaultMinArea,
	}
}

// Pipeline computes the regions of change between two intensity buffers.
type Pipeline interface {
	Regions(prev, curr *image.Gray, s Settings) ([]Region, error)
}

// Native is the pure Go pipeline.
type Native struct{}

// Regions diffs, thresholds, optionally dilates and extracts regions.
func (Native) Regions(prev, curr *image.Gray, s Settings) ([]Region, error) {
	diff, err := Diff(curr, prev)
	if err != nil {
		return nil, err
	}
	mask := Threshold(diff, s.DiffThreshold)
	if s.DilateRadius > 0 {
		mask = Dilate(mask, s.DilateRadius)
	}
	return ExtractRegions(mask), nil
}

var (
	pipelinesMu sync.RWMutex
	pipelines   = map[string]func() Pipeline{
		"native": func() Pipeline { return Native{} },
	}
)

func registerPipeline(name string, fn func() Pipeline) {
	pipelinesMu.Lock()
	defer pipelinesMu.Unlock()
	pipelines[name] = fn
}

// NewPipeline returns the pipeline registered under name. An empty name
// selects the native pipeline.
func NewPipeline(name string) (Pipeline, error) {
	if name == "" {
		name = "native"
	}
	pipelinesMu.RLock()
	defer pipelinesMu.RUnlock()
	fn, ok := pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown motion backend %q (available: %v)", name, pipelineNames())
	}
	return fn(), nil
}

func pipelineNames() []string {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
