// Package preprocess crops annotated source images to their bounding boxes
// and persists them into per-split storage for the feeders to consume.
package preprocess

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"carvision/annotations"
	"carvision/dataset"
)

// Config holds configuration for the preprocessor.
type Config struct {
	SourceRoot string // Directory containing the raw images
	DestRoot   string // Directory receiving per-split cropped images
	Quality    int    // JPEG quality for saved crops
	Workers    int    // Number of parallel crop workers
}

// Processor validates bounding boxes, crops source images and writes the
// crops to destRoot/<split>/<filename>. Records with invalid boxes or
// missing source images are skipped with a diagnostic, never aborting the
// batch.
type Processor struct {
	config Config
	log    logrus.FieldLogger
}

// NewProcessor creates a preprocessor. A nil logger falls back to the
// standard logrus logger.
func NewProcessor(config Config, log logrus.FieldLogger) *Processor {
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = 95
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Processor{config: config, log: log}
}

// Run crops every record with a valid bounding box and returns the resulting
// split, whose sample paths are rewritten to the <split>/<filename> relative
// form. Cropping is parallel across records: each worker owns disjoint input
// records and writes to disjoint output paths.
func (p *Processor) Run(splitName string, records []annotations.Record) (*dataset.Split, error) {
	destDir := filepath.Join(p.config.DestRoot, splitName)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	type job struct {
		index int
		rec   annotations.Record
	}

	results := make([]*dataset.Sample, len(records))
	jobs := make(chan job, len(records))
	var wg sync.WaitGroup

	for w := 0; w < p.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				sample, ok := p.processRecord(splitName, j.rec)
				if ok {
					results[j.index] = &sample
				}
			}
		}()
	}

	for i, rec := range records {
		jobs <- job{index: i, rec: rec}
	}
	close(jobs)
	wg.Wait()

	kept := make([]dataset.Sample, 0, len(records))
	for _, sample := range results {
		if sample != nil {
			kept = append(kept, *sample)
		}
	}

	p.log.WithFields(logrus.Fields{
		"split":   splitName,
		"input":   len(records),
		"written": len(kept),
		"skipped": len(records) - len(kept),
	}).Info("preprocessing complete")

	return dataset.FromSamples(splitName, kept), nil
}

// processRecord crops one record. Returns false when the record was skipped.
func (p *Processor) processRecord(splitName string, rec annotations.Record) (dataset.Sample, bool) {
	if !rec.BBox.Valid() {
		p.log.WithFields(logrus.Fields{
			"file": rec.Filename,
			"bbox": fmt.Sprintf("(%d,%d,%d,%d)", rec.BBox.X1, rec.BBox.Y1, rec.BBox.X2, rec.BBox.Y2),
		}).Warn("skipping record with invalid bounding box")
		return dataset.Sample{}, false
	}

	srcPath := filepath.Join(p.config.SourceRoot, rec.Filename)
	img, err := loadImage(srcPath)
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"file":  rec.Filename,
			"error": err,
		}).Warn("skipping record with unreadable source image")
		return dataset.Sample{}, false
	}

	// Crop region is [left, right) x [top, bottom): left/top inclusive,
	// right/bottom exclusive.
	rect := image.Rect(rec.BBox.X1, rec.BBox.Y1, rec.BBox.X2, rec.BBox.Y2)
	cropped := imaging.Crop(img, rect)

	destPath := filepath.Join(p.config.DestRoot, splitName, rec.Filename)
	if err := p.saveImage(cropped, destPath); err != nil {
		p.log.WithFields(logrus.Fields{
			"file":  rec.Filename,
			"error": err,
		}).Warn("skipping record that failed to save")
		return dataset.Sample{}, false
	}

	return dataset.Sample{
		Path:  filepath.Join(splitName, rec.Filename),
		Class: rec.Class,
	}, true
}

func (p *Processor) saveImage(img *image.NRGBA, path string) error {
	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(p.config.Quality)})
	}
	return imaging.Save(img, path, imaging.JPEGQuality(p.config.Quality))
}

// loadImage opens an image through the registered decoders, falling back to
// an explicit webp decode for files the default decoders reject.
func loadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if img, err := webp.Decode(f); err == nil {
		return img, nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return img, nil
		}
	}
	return nil, fmt.Errorf("unknown image format for %s", path)
}
