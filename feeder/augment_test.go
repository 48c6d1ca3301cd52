package feeder

import (
	"image"
	"math/rand"
	"testing"
)

func gradientImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*img.Stride + x*4
			img.Pix[idx+0] = uint8(x * 255 / w)
			img.Pix[idx+1] = uint8(y * 255 / h)
			img.Pix[idx+2] = 128
			img.Pix[idx+3] = 255
		}
	}
	return img
}

func TestApplyIdentityWithoutGeometricOptions(t *testing.T) {
	img := gradientImage(16, 16)
	a := newAugmenter(RescaleOnly(), rand.New(rand.NewSource(1)))

	out := a.apply(img)
	if out != img {
		t.Error("expected the input image back when no geometric option is active")
	}
}

func TestAffineIdentityTransform(t *testing.T) {
	img := gradientImage(12, 12)
	out := affineTransform(img, 0, 0, 1.0, 0, 0, FillNearest, 0)

	for i := range img.Pix {
		if out.Pix[i] != img.Pix[i] {
			t.Fatalf("identity transform changed pixel byte %d: %d != %d", i, out.Pix[i], img.Pix[i])
		}
	}
}

func TestAffineShiftMovesPixels(t *testing.T) {
	// A 3px rightward shift should place the source column 0 at column 3.
	img := gradientImage(16, 16)
	out := affineTransform(img, 0, 0, 1.0, 3, 0, FillConstant, 0)

	srcIdx := 8*img.Stride + 0*4
	dstIdx := 8*out.Stride + 3*4
	if out.Pix[dstIdx] != img.Pix[srcIdx] {
		t.Errorf("shifted pixel mismatch: got %d, want %d", out.Pix[dstIdx], img.Pix[srcIdx])
	}
}

func TestConstantFillOutsideBounds(t *testing.T) {
	img := gradientImage(16, 16)
	out := affineTransform(img, 0, 0, 1.0, 8, 0, FillConstant, 42)

	// Columns 0..7 map outside the source and take the fill value.
	idx := 5*out.Stride + 2*4
	if out.Pix[idx] != 42 || out.Pix[idx+1] != 42 || out.Pix[idx+2] != 42 {
		t.Errorf("expected constant fill 42, got (%d,%d,%d)", out.Pix[idx], out.Pix[idx+1], out.Pix[idx+2])
	}
}

func TestNearestFillClampsToEdge(t *testing.T) {
	img := gradientImage(16, 16)
	out := affineTransform(img, 0, 0, 1.0, 8, 0, FillNearest, 0)

	// Out-of-bounds columns clamp to source column 0.
	edgeIdx := 5*img.Stride + 0*4
	outIdx := 5*out.Stride + 2*4
	if out.Pix[outIdx] != img.Pix[edgeIdx] {
		t.Errorf("expected edge clamp value %d, got %d", img.Pix[edgeIdx], out.Pix[outIdx])
	}
}

func TestAugmentationIsSeedDeterministic(t *testing.T) {
	config := AugmentationConfig{
		Rescale:        DefaultRescale,
		RotationRange:  20,
		ZoomRange:      0.2,
		HorizontalFlip: true,
		FillMode:       FillNearest,
	}

	run := func() []uint8 {
		a := newAugmenter(config, rand.New(rand.NewSource(7)))
		out := a.apply(gradientImage(16, 16))
		pix := make([]uint8, len(out.Pix))
		copy(pix, out.Pix)
		return pix
	}

	first := run()
	second := run()
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different pixels at byte %d", i)
		}
	}
}

func TestModAndReflectHelpers(t *testing.T) {
	tests := []struct {
		v, n    int
		mod     int
		reflect int
	}{
		{-1, 5, 4, 1},
		{0, 5, 0, 0},
		{4, 5, 4, 4},
		{5, 5, 0, 3},
		{7, 5, 2, 1},
		{-3, 5, 2, 3},
	}
	for _, tt := range tests {
		if got := mod(tt.v, tt.n); got != tt.mod {
			t.Errorf("mod(%d, %d) = %d, want %d", tt.v, tt.n, got, tt.mod)
		}
		if got := reflect(tt.v, tt.n); got != tt.reflect {
			t.Errorf("reflect(%d, %d) = %d, want %d", tt.v, tt.n, got, tt.reflect)
		}
	}
}
