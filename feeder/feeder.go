package feeder

import (
	"fmt"
	"image"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	// The preprocessor may write webp crops; register the decoder so this
	// package can read them without preprocess linked in.
	_ "golang.org/x/image/webp"

	"carvision/dataset"
	"carvision/tensor"
)

// Default feeder parameters, matching the feature extractor's fixed
// 224x224x3 input contract.
const (
	DefaultBatchSize = 32
	DefaultImageSize = 224
	Channels         = 3
)

// Config holds configuration for a Feeder.
type Config struct {
	Root      string             // Directory holding the per-split cropped images
	BatchSize int                // Samples per batch (default 32)
	ImageSize int                // Square spatial size (default 224)
	Shuffle   bool               // Reshuffle sample order at each wrap-around
	Augment   AugmentationConfig // Normalization and augmentation policy
	Seed      int64              // Seed for shuffling and augmentation draws
	CacheSize int                // Max decoded images kept in memory (0 disables)
}

// Feeder produces a lazy, restartable, batched sequence of (image tensor,
// one-hot label tensor) pairs from one split. The sequence wraps around
// indefinitely; Steps() tells the consumer how many batches make one full
// pass. A feeder is advanced by a single consumer at a time.
type Feeder struct {
	samples   []dataset.Sample
	classes   *ClassIndex
	config    Config
	rng       *rand.Rand
	augmenter *augmenter
	cache     *imageCache

	mu       sync.Mutex
	indices  []int
	position int
}

// New creates a feeder over a split. The class index must cover every label
// in the split; it is built from all splits so one-hot width stays constant
// across feeders.
func New(split *dataset.Split, classes *ClassIndex, config Config) (*Feeder, error) {
	if split.Len() == 0 {
		return nil, fmt.Errorf("cannot feed from empty split %q", split.Name)
	}
	if classes.NumClasses() == 0 {
		return nil, fmt.Errorf("class index is empty")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.ImageSize <= 0 {
		config.ImageSize = DefaultImageSize
	}
	if config.Augment.Rescale == 0 {
		config.Augment.Rescale = DefaultRescale
	}

	samples := split.Samples()
	for _, sample := range samples {
		if _, ok := classes.Column(sample.Class); !ok {
			return nil, fmt.Errorf("split %q contains class %d missing from the class index", split.Name, sample.Class)
		}
	}

	rng := rand.New(rand.NewSource(config.Seed))

	indices := make([]int, len(samples))
	for i := range indices {
		indices[i] = i
	}
	if config.Shuffle {
		rng.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	var cache *imageCache
	if config.CacheSize > 0 {
		cache = newImageCache(config.CacheSize)
	}

	return &Feeder{
		samples:   samples,
		classes:   classes,
		config:    config,
		rng:       rng,
		augmenter: newAugmenter(config.Augment, rng),
		cache:     cache,
		indices:   indices,
	}, nil
}

// Len returns the number of samples in one full pass.
func (f *Feeder) Len() int {
	return len(f.samples)
}

// Steps returns the number of batches per epoch: ceil(len/batchSize).
func (f *Feeder) Steps() int {
	return (len(f.samples) + f.config.BatchSize - 1) / f.config.BatchSize
}

// NumClasses returns the one-hot label width.
func (f *Feeder) NumClasses() int {
	return f.classes.NumClasses()
}

// Classes returns the class index shared by all feeders of this run.
func (f *Feeder) Classes() *ClassIndex {
	return f.classes
}

// Reset rewinds the feeder to the start of an epoch. Shuffling feeders draw
// a fresh order; deterministic feeders restart the same fixed order.
func (f *Feeder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewind()
}

func (f *Feeder) rewind() {
	f.position = 0
	if f.config.Shuffle {
		f.rng.Shuffle(len(f.indices), func(i, j int) {
			f.indices[i], f.indices[j] = f.indices[j], f.indices[i]
		})
	}
}

// Next returns the next (image batch, one-hot label batch). The sequence
// wraps around at the end of a pass, so callers drive epochs by consuming
// Steps() batches. Image batches are CHW float32 of shape
// [n, 3, size, size]; label batches have shape [n, numClasses].
func (f *Feeder) Next() (*tensor.Tensor, *tensor.Tensor, error) {
	f.mu.Lock()
	if f.position >= len(f.indices) {
		f.rewind()
	}
	batchEnd := f.position + f.config.BatchSize
	if batchEnd > len(f.indices) {
		batchEnd = len(f.indices)
	}
	batchIndices := make([]int, batchEnd-f.position)
	copy(batchIndices, f.indices[f.position:batchEnd])
	f.position = batchEnd
	f.mu.Unlock()

	return f.loadBatch(batchIndices)
}

func (f *Feeder) loadBatch(batchIndices []int) (*tensor.Tensor, *tensor.Tensor, error) {
	n := len(batchIndices)
	size := f.config.ImageSize
	numClasses := f.classes.NumClasses()

	images, err := tensor.Zeros([]int{n, Channels, size, size})
	if err != nil {
		return nil, nil, err
	}
	labels, err := tensor.Zeros([]int{n, numClasses})
	if err != nil {
		return nil, nil, err
	}

	pixelsPerImage := Channels * size * size
	for i, idx := range batchIndices {
		sample := f.samples[idx]

		img, err := f.loadSample(sample.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load sample %s: %w", sample.Path, err)
		}

		img = f.augmenter.apply(img)
		fillCHW(images.Data[i*pixelsPerImage:(i+1)*pixelsPerImage], img, size, float32(f.config.Augment.Rescale))

		col, _ := f.classes.Column(sample.Class)
		labels.Data[i*numClasses+col] = 1
	}

	return images, labels, nil
}

// loadSample decodes and resizes one image, consulting the cache first. The
// cached copy is the resized base image; augmentation always operates on a
// fresh copy so cached pixels stay pristine.
func (f *Feeder) loadSample(path string) (*image.NRGBA, error) {
	if f.cache != nil {
		if img, ok := f.cache.get(path); ok {
			return cloneNRGBA(img), nil
		}
	}

	img, err := imaging.Open(filepath.Join(f.config.Root, path))
	if err != nil {
		return nil, err
	}
	resized := imaging.Resize(img, f.config.ImageSize, f.config.ImageSize, imaging.Lanczos)

	if f.cache != nil {
		f.cache.put(path, resized)
		return cloneNRGBA(resized), nil
	}
	return resized, nil
}

// CacheStats reports decoded-image cache statistics, or zero stats when the
// cache is disabled.
func (f *Feeder) CacheStats() CacheStats {
	if f.cache == nil {
		return CacheStats{}
	}
	return f.cache.stats()
}

// fillCHW converts NRGBA pixels to normalized CHW float32 data.
func fillCHW(dst []float32, img *image.NRGBA, size int, rescale float32) {
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			idx := y*img.Stride + x*4
			pos := y*size + x
			dst[0*plane+pos] = float32(img.Pix[idx+0]) * rescale
			dst[1*plane+pos] = float32(img.Pix[idx+1]) * rescale
			dst[2*plane+pos] = float32(img.Pix[idx+2]) * rescale
		}
	}
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}
