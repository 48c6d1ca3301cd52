package feeder

import (
	"image"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
)

// FillMode selects how pixels sampled outside the source image are filled
// during geometric transforms.
type FillMode string

const (
	FillNearest  FillMode = "nearest"
	FillReflect  FillMode = "reflect"
	FillWrap     FillMode = "wrap"
	FillConstant FillMode = "constant"
)

// AugmentationConfig enumerates the recognized augmentation options. The
// option set is closed: there are no dynamic keyword options.
type AugmentationConfig struct {
	Rescale          float64  // Per-pixel multiplicative normalization
	RotationRange    float64  // Max rotation in degrees, sampled in [-r, r]
	WidthShiftRange  float64  // Max horizontal shift as a fraction of width
	HeightShiftRange float64  // Max vertical shift as a fraction of height
	ShearRange       float64  // Max shear angle in degrees
	ZoomRange        float64  // Zoom sampled in [1-z, 1+z]
	HorizontalFlip   bool     // Randomly mirror half of the images
	FillMode         FillMode // Fill policy for out-of-bounds samples
	FillValue        uint8    // Constant fill value when FillMode is constant
}

// DefaultRescale is the normalization applied when no rescale is configured.
const DefaultRescale = 1.0 / 255.0

// RescaleOnly returns the configuration used for validation and testing
// feeders: normalization without geometric augmentation, so evaluation stays
// deterministic.
func RescaleOnly() AugmentationConfig {
	return AugmentationConfig{Rescale: DefaultRescale, FillMode: FillNearest}
}

// geometric reports whether any geometric option is active.
func (c AugmentationConfig) geometric() bool {
	return c.RotationRange != 0 || c.WidthShiftRange != 0 || c.HeightShiftRange != 0 ||
		c.ShearRange != 0 || c.ZoomRange != 0 || c.HorizontalFlip
}

// augmenter applies random affine transforms drawn from its rng. It is not
// safe for concurrent use; each feeder owns one.
type augmenter struct {
	config AugmentationConfig
	rng    *rand.Rand
}

func newAugmenter(config AugmentationConfig, rng *rand.Rand) *augmenter {
	if config.FillMode == "" {
		config.FillMode = FillNearest
	}
	return &augmenter{config: config, rng: rng}
}

// apply returns a randomly transformed copy of the image. With no geometric
// options active the input is returned unchanged.
func (a *augmenter) apply(img *image.NRGBA) *image.NRGBA {
	if !a.config.geometric() {
		return img
	}

	angle := a.uniform(a.config.RotationRange) * math.Pi / 180
	shear := a.uniform(a.config.ShearRange) * math.Pi / 180
	zoom := 1.0
	if a.config.ZoomRange != 0 {
		zoom = 1.0 + a.uniform(a.config.ZoomRange)
	}

	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	tx := a.uniform(a.config.WidthShiftRange) * float64(w)
	ty := a.uniform(a.config.HeightShiftRange) * float64(h)

	out := img
	if angle != 0 || shear != 0 || zoom != 1.0 || tx != 0 || ty != 0 {
		out = affineTransform(img, angle, shear, zoom, tx, ty, a.config.FillMode, a.config.FillValue)
	}
	if a.config.HorizontalFlip && a.rng.Float64() < 0.5 {
		out = imaging.FlipH(out)
	}
	return out
}

func (a *augmenter) uniform(r float64) float64 {
	if r == 0 {
		return 0
	}
	return (a.rng.Float64()*2 - 1) * r
}

// affineTransform warps the image with a rotation/shear/zoom/shift composed
// about the image center, sampling source pixels by inverse mapping.
func affineTransform(img *image.NRGBA, angle, shear, zoom, tx, ty float64, fill FillMode, fillValue uint8) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	cx := float64(w) / 2
	cy := float64(h) / 2

	// Forward matrix M = R(angle) * Shear(shear) * Zoom, applied about the
	// center, then shifted by (tx, ty). Output pixels sample the source at
	// M^-1 * (p - c - t) + c.
	cos, sin := math.Cos(angle), math.Sin(angle)
	sh := math.Tan(shear)
	m00 := cos * zoom
	m01 := (cos*sh - sin) * zoom
	m10 := sin * zoom
	m11 := (sin*sh + cos) * zoom

	det := m00*m11 - m01*m10
	if det == 0 {
		return img
	}
	i00 := m11 / det
	i01 := -m01 / det
	i10 := -m10 / det
	i11 := m00 / det

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(x) - cx - tx
			dy := float64(y) - cy - ty
			srcX := int(math.Round(i00*dx + i01*dy + cx))
			srcY := int(math.Round(i10*dx + i11*dy + cy))

			r, g, b, ok := samplePixel(img, srcX, srcY, w, h, fill)
			idx := y*out.Stride + x*4
			if !ok {
				out.Pix[idx+0] = fillValue
				out.Pix[idx+1] = fillValue
				out.Pix[idx+2] = fillValue
				out.Pix[idx+3] = 255
				continue
			}
			out.Pix[idx+0] = r
			out.Pix[idx+1] = g
			out.Pix[idx+2] = b
			out.Pix[idx+3] = 255
		}
	}
	return out
}

// samplePixel reads a source pixel, resolving out-of-bounds coordinates
// according to the fill mode. ok is false only for constant fill outside
// the source bounds.
func samplePixel(img *image.NRGBA, x, y, w, h int, fill FillMode) (uint8, uint8, uint8, bool) {
	if x < 0 || x >= w || y < 0 || y >= h {
		switch fill {
		case FillConstant:
			return 0, 0, 0, false
		case FillWrap:
			x = mod(x, w)
			y = mod(y, h)
		case FillReflect:
			x = reflect(x, w)
			y = reflect(y, h)
		default: // nearest
			x = clampInt(x, 0, w-1)
			y = clampInt(y, 0, h-1)
		}
	}
	idx := y*img.Stride + x*4
	return img.Pix[idx], img.Pix[idx+1], img.Pix[idx+2], true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mod(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// reflect mirrors an out-of-range coordinate back into [0, n) with
// edge-inclusive reflection.
func reflect(v, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	v = mod(v, period)
	if v >= n {
		v = period - v
	}
	return v
}
