package motion

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/gift"
)

// luma is the BT.601 weighting in 14-bit fixed point, rounded to nearest.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*4899 + uint32(g)*9617 + uint32(b)*1868 + 8192) >> 14)
}

// ToGrayscale converts a frame to a single-channel intensity buffer anchored
// at the origin. Alpha is ignored.
func ToGrayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	gray := image.NewGray(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			in := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			for x := range out {
				out[x] = luma(in[x*4], in[x*4+1], in[x*4+2])
			}
		}
	case *image.RGBA:
		for y := 0; y < h; y++ {
			in := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := gray.Pix[y*gray.Stride : y*gray.Stride+w]
			for x := range out {
				out[x] = luma(in[x*4], in[x*4+1], in[x*4+2])
			}
		}
	case *image.Gray:
		for y := 0; y < h; y++ {
			copy(gray.Pix[y*gray.Stride:y*gray.Stride+w], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				gray.Pix[y*gray.Stride+x] = luma(c.R, c.G, c.B)
			}
		}
	}
	return gray
}

// Diff returns |curr - prev| per pixel.
func Diff(curr, prev *image.Gray) (*image.Gray, error) {
	cb, pb := curr.Bounds(), prev.Bounds()
	if cb.Dx() != pb.Dx() || cb.Dy() != pb.Dy() {
		return nil, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, cb.Dx(), cb.Dy(), pb.Dx(), pb.Dy())
	}
	w, h := cb.Dx(), cb.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		c := curr.Pix[curr.PixOffset(cb.Min.X, cb.Min.Y+y):]
		p := prev.Pix[prev.PixOffset(pb.Min.X, pb.Min.Y+y):]
		o := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range o {
			if c[x] > p[x] {
				o[x] = c[x] - p[x]
			} else {
				o[x] = p[x] - c[x]
			}
		}
	}
	return out, nil
}

// Threshold maps every pixel strictly above t to 255 and the rest to 0.
func Threshold(diff *image.Gray, t uint8) *image.Gray {
	b := diff.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		in := diff.Pix[diff.PixOffset(b.Min.X, b.Min.Y+y):]
		o := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := range o {
			if in[x] > t {
				o[x] = 255
			}
		}
	}
	return out
}

// Blur smooths an intensity buffer with a Gaussian kernel to suppress
// sensor noise before differencing.
func Blur(gray *image.Gray, sigma float64) *image.Gray {
	g := gift.New(gift.GaussianBlur(float32(sigma)))
	dst := image.NewGray(g.Bounds(gray.Bounds()))
	g.Draw(dst, gray)
	return dst
}

// Dilate grows the foreground of a binary mask so that fragments of one
// moving object merge into a single region.
func Dilate(mask *image.Gray, radius float64) *image.Gray {
	grown := effect.Dilate(mask, radius)
	b := grown.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		in := grown.Pix[grown.PixOffset(b.Min.X, b.Min.Y+y):]
		o := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range o {
			if in[x*4] != 0 {
				o[x] = 255
			}
		}
	}
	return out
}
