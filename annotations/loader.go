// Package annotations decodes per-image bounding box and class label records
// from an on-disk annotation table into the in-memory form the rest of the
// pipeline consumes.
package annotations

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// BBox is a pixel-coordinate bounding box. X1/Y1 is the top-left corner,
// X2/Y2 the bottom-right. A box is only usable when X2>X1 and Y2>Y1.
type BBox struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

// Valid reports whether the box describes a positive-area rectangle with
// non-negative coordinates.
func (b BBox) Valid() bool {
	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 > b.X1 && b.Y2 > b.Y1
}

// Width returns the crop width in pixels.
func (b BBox) Width() int {
	return b.X2 - b.X1
}

// Height returns the crop height in pixels.
func (b BBox) Height() int {
	return b.Y2 - b.Y1
}

// Record is one annotation entry: a filename, its bounding box, and a
// 1-based class label.
type Record struct {
	Filename string
	BBox     BBox
	Class    int
}

// Load reads an annotation table from a CSV file with columns
// x1,y1,x2,y2,class,filename and returns one Record per row in source order.
// No deduplication is performed. A missing or malformed file is a fatal
// condition for the pipeline, so any failure is returned as an error.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation source: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 6

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse annotation source %s: %w", path, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("annotation source %s contains no records", path)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("annotation source %s row %d: %w", path, i+1, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(row []string) (Record, error) {
	var coords [4]int
	for i := 0; i < 4; i++ {
		v, err := strconv.Atoi(row[i])
		if err != nil {
			return Record{}, fmt.Errorf("invalid bbox coordinate %q: %w", row[i], err)
		}
		coords[i] = v
	}

	class, err := strconv.Atoi(row[4])
	if err != nil {
		return Record{}, fmt.Errorf("invalid class label %q: %w", row[4], err)
	}
	if class < 1 {
		return Record{}, fmt.Errorf("class label must be a 1-based positive integer, got %d", class)
	}

	if row[5] == "" {
		return Record{}, fmt.Errorf("empty filename")
	}

	return Record{
		Filename: row[5],
		BBox:     BBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]},
		Class:    class,
	}, nil
}
