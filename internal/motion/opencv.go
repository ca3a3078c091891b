//go:build opencv

package motion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

func init() {
	registerPipeline("opencv", func() Pipeline { return CVPipeline{} })
}

// CVPipeline runs the diff/threshold/contour stages through OpenCV. Contour
// areas come from ContourArea, so they approximate rather than count pixels.
type CVPipeline struct{}

func (CVPipeline) Regions(prev, curr *image.Gray, s Settings) ([]Region, error) {
	if prev.Bounds().Size() != curr.Bounds().Size() {
		return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, curr.Bounds().Size(), prev.Bounds().Size())
	}

	prevMat, err := gocv.ImageGrayToMatGray(prev)
	if err != nil {
		return nil, fmt.Errorf("failed to convert previous frame: %w", err)
	}
	defer prevMat.Close()

	currMat, err := gocv.ImageGrayToMatGray(curr)
	if err != nil {
		return nil, fmt.Errorf("failed to convert current frame: %w", err)
	}
	defer currMat.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(currMat, prevMat, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, float32(s.DiffThreshold), 255, gocv.ThresholdBinary)

	if s.DilateRadius > 0 {
		size := int(2*s.DilateRadius) + 1
		kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(size, size))
		defer kernel.Close()
		gocv.Dilate(thresh, &thresh, kernel)
	}

	contours := gocv.FindContours(thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	regions := make([]Region, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		c := contours.At(i)
		rect := gocv.BoundingRect(c)
		regions = append(regions, Region{
			X:      rect.Min.X,
			Y:      rect.Min.Y,
			Width:  rect.Dx(),
			Height: rect.Dy(),
			Area:   int(gocv.ContourArea(c)),
		})
	}
	return regions, nil
}
