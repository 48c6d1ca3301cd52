// Package dataset holds the named record partitions the pipeline trains and
// evaluates on, and the deterministic partitioner that creates them.
package dataset

import (
	"fmt"
	"sort"
	"strings"

	"carvision/annotations"
)

// Standard split names used for per-split storage locations.
const (
	Training   = "training"
	Validation = "validation"
	Testing    = "testing"
)

// Sample pairs a relative image path with its 1-based class label.
type Sample struct {
	Path  string
	Class int
}

// Split is a named, ordered partition of the dataset. It is created once per
// run; after creation only the path prefix changes, when the preprocessor
// moves samples into split-specific storage.
type Split struct {
	Name    string
	samples []Sample
}

// NewSplit builds a split from annotation records, preserving record order.
func NewSplit(name string, records []annotations.Record) *Split {
	samples := make([]Sample, len(records))
	for i, rec := range records {
		samples[i] = Sample{Path: rec.Filename, Class: rec.Class}
	}
	return &Split{Name: name, samples: samples}
}

// FromSamples builds a split directly from samples. Used by the preprocessor
// when rewriting paths into their split-specific form.
func FromSamples(name string, samples []Sample) *Split {
	copied := make([]Sample, len(samples))
	copy(copied, samples)
	return &Split{Name: name, samples: copied}
}

// Len returns the number of samples in the split.
func (s *Split) Len() int {
	return len(s.samples)
}

// Samples returns a copy of the ordered sample sequence.
func (s *Split) Samples() []Sample {
	copied := make([]Sample, len(s.samples))
	copy(copied, s.samples)
	return copied
}

// Get returns the sample at the given index.
func (s *Split) Get(index int) (Sample, error) {
	if index < 0 || index >= len(s.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", index, len(s.samples))
	}
	return s.samples[index], nil
}

// Classes returns the distinct class labels present in the split, ascending.
func (s *Split) Classes() []int {
	seen := make(map[int]bool)
	for _, sample := range s.samples {
		seen[sample.Class] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

// ClassDistribution returns the number of samples per class label.
func (s *Split) ClassDistribution() map[int]int {
	dist := make(map[int]int)
	for _, sample := range s.samples {
		dist[sample.Class]++
	}
	return dist
}

// String returns a short human-readable summary of the split.
func (s *Split) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Split %q: %d samples, %d classes", s.Name, len(s.samples), len(s.Classes())))
	return sb.String()
}
