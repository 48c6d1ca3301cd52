// Package feeder turns dataset splits into lazy, batched, optionally
// augmented sequences of image tensors and one-hot label tensors.
package feeder

import (
	"fmt"
	"sort"

	"carvision/dataset"
)

// ClassIndex maps 1-based class labels to one-hot columns. It is built from
// the union of labels across all splits at construction time, so a split
// containing only a subset of classes still encodes with the full width.
type ClassIndex struct {
	columns map[int]int
	labels  []int
}

// NewClassIndex builds the label space from every provided split.
func NewClassIndex(splits ...*dataset.Split) *ClassIndex {
	seen := make(map[int]bool)
	for _, split := range splits {
		for _, class := range split.Classes() {
			seen[class] = true
		}
	}

	labels := make([]int, 0, len(seen))
	for class := range seen {
		labels = append(labels, class)
	}
	sort.Ints(labels)

	columns := make(map[int]int, len(labels))
	for col, class := range labels {
		columns[class] = col
	}

	return &ClassIndex{columns: columns, labels: labels}
}

// NumClasses returns the one-hot width.
func (ci *ClassIndex) NumClasses() int {
	return len(ci.labels)
}

// Column returns the one-hot column for a class label.
func (ci *ClassIndex) Column(class int) (int, bool) {
	col, ok := ci.columns[class]
	return col, ok
}

// Label returns the class label encoded by a one-hot column.
func (ci *ClassIndex) Label(column int) (int, error) {
	if column < 0 || column >= len(ci.labels) {
		return 0, fmt.Errorf("column %d out of range [0, %d)", column, len(ci.labels))
	}
	return ci.labels[column], nil
}

// Labels returns the full ascending label list.
func (ci *ClassIndex) Labels() []int {
	copied := make([]int, len(ci.labels))
	copy(copied, ci.labels)
	return copied
}
