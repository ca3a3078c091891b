package motion

import (
	"errors"
	"image"
	"testing"
)

func TestDetectorBootstrap(t *testing.T) {
	d := NewDetector("cam1", nil)

	frame := solidFrame(50, 50, gray(0))
	paint(frame, image.Rect(0, 0, 50, 25), gray(255))

	res, err := d.Process(frame, DefaultSettings())
	if err != nil {
		t.Fatalf("First frame must not fail: %v", err)
	}
	if !res.Bootstrap {
		t.Error("Expected bootstrap on first frame")
	}
	if res.Motion() || len(res.Regions) != 0 {
		t.Errorf("Expected no motion on first frame, got %+v", res)
	}
	if !d.Primed() {
		t.Error("Expected first frame to be retained")
	}
}

func TestDetectorScenario(t *testing.T) {
	d := NewDetector("cam1", Native{})
	s := Settings{DiffThreshold: 30, MinArea: 100}

	background := solidFrame(160, 160, gray(100))
	moved := solidFrame(160, 160, gray(100))
	paint(moved, image.Rect(10, 10, 22, 22), gray(150))

	if _, err := d.Process(background, s); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	res, err := d.Process(moved, s)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Bootstrap {
		t.Fatal("Second frame must not bootstrap")
	}
	want := Region{X: 10, Y: 10, Width: 12, Height: 12, Area: 144}
	if len(res.Significant) != 1 || res.Significant[0] != want {
		t.Fatalf("Expected %+v, got %+v", want, res.Significant)
	}

	// The same frame again diffs against the moved frame, not the background.
	res, err = d.Process(moved, s)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if res.Motion() || len(res.Regions) != 0 {
		t.Errorf("Expected no motion for a repeated frame, got %+v", res)
	}
}

func TestDetectorSmallChangeBelowFloor(t *testing.T) {
	d := NewDetector("cam1", nil)
	s := DefaultSettings()

	a := solidFrame(40, 40, gray(0))
	b := solidFrame(40, 40, gray(0))
	paint(b, image.Rect(5, 5, 15, 15), gray(255)) // area 100, not above floor

	d.Process(a, s)
	res, err := d.Process(b, s)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(res.Regions) != 1 {
		t.Fatalf("Expected one region, got %+v", res.Regions)
	}
	if res.Motion() {
		t.Error("Area 100 must not exceed the default floor")
	}
}

func TestDetectorDeltaBelowThreshold(t *testing.T) {
	d := NewDetector("cam1", nil)
	s := DefaultSettings()

	d.Process(solidFrame(40, 40, gray(100)), s)
	res, _ := d.Process(solidFrame(40, 40, gray(130)), s)
	if len(res.Regions) != 0 {
		t.Errorf("Delta equal to the threshold must not produce regions, got %+v", res.Regions)
	}
}

func TestDetectorResolutionChange(t *testing.T) {
	d := NewDetector("cam1", nil)
	s := DefaultSettings()

	d.Process(solidFrame(40, 40, gray(0)), s)
	res, err := d.Process(solidFrame(80, 60, gray(255)), s)
	if err != nil {
		t.Fatalf("Resolution change must not fail: %v", err)
	}
	if !res.Bootstrap {
		t.Error("Expected resolution change to bootstrap")
	}
}

func TestDetectorResetAndClose(t *testing.T) {
	d := NewDetector("cam1", nil)
	s := DefaultSettings()

	d.Process(solidFrame(10, 10, gray(0)), s)
	d.Reset()
	if d.Primed() {
		t.Error("Expected Reset to drop the retained frame")
	}
	res, _ := d.Process(solidFrame(10, 10, gray(255)), s)
	if !res.Bootstrap {
		t.Error("Expected bootstrap after Reset")
	}

	d.Close()
	if _, err := d.Process(solidFrame(10, 10, gray(0)), s); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if d.Primed() {
		t.Error("Expected Close to release the retained frame")
	}
}

func TestNewPipeline(t *testing.T) {
	p, err := NewPipeline("")
	if err != nil {
		t.Fatalf("Expected default pipeline, got %v", err)
	}
	if _, ok := p.(Native); !ok {
		t.Errorf("Expected Native pipeline, got %T", p)
	}
	if _, err := NewPipeline("does-not-exist"); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
