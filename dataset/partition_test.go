package dataset

import (
	"fmt"
	"testing"

	"carvision/annotations"
)

func syntheticRecords(n int) []annotations.Record {
	records := make([]annotations.Record, n)
	for i := range records {
		records[i] = annotations.Record{
			Filename: fmt.Sprintf("img_%03d.jpg", i+1),
			BBox:     annotations.BBox{X1: 0, Y1: 0, X2: 10, Y2: 10},
			Class:    i%2 + 1,
		}
	}
	return records
}

func TestPartitionDeterministic(t *testing.T) {
	records := syntheticRecords(100)

	train1, valid1, err := Partition(records, 0.8, 42)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	train2, valid2, err := Partition(records, 0.8, 42)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if len(train1) != len(train2) || len(valid1) != len(valid2) {
		t.Fatal("repeated runs produced different split sizes")
	}
	for i := range train1 {
		if train1[i] != train2[i] {
			t.Fatalf("training record %d differs between runs", i)
		}
	}
	for i := range valid1 {
		if valid1[i] != valid2[i] {
			t.Fatalf("validation record %d differs between runs", i)
		}
	}
}

func TestPartitionSizesAndDisjointness(t *testing.T) {
	for _, n := range []int{10, 33, 100, 101} {
		records := syntheticRecords(n)
		train, valid, err := Partition(records, 0.8, 7)
		if err != nil {
			t.Fatalf("n=%d: Partition failed: %v", n, err)
		}

		wantTrain := int(0.8 * float64(n))
		if len(train) != wantTrain {
			t.Errorf("n=%d: expected %d training records, got %d", n, wantTrain, len(train))
		}
		if len(valid) != n-wantTrain {
			t.Errorf("n=%d: expected %d validation records, got %d", n, n-wantTrain, len(valid))
		}

		seen := make(map[string]int)
		for _, rec := range train {
			seen[rec.Filename]++
		}
		for _, rec := range valid {
			seen[rec.Filename]++
		}
		if len(seen) != n {
			t.Errorf("n=%d: union covers %d filenames, expected %d", n, len(seen), n)
		}
		for name, count := range seen {
			if count != 1 {
				t.Errorf("n=%d: %s appears %d times across splits", n, name, count)
			}
		}
	}
}

func TestPartitionTenRecordScenario(t *testing.T) {
	records := syntheticRecords(10)

	train, valid, err := Partition(records, 0.8, 42)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if len(train) != 8 {
		t.Errorf("expected 8 training records, got %d", len(train))
	}
	if len(valid) != 2 {
		t.Errorf("expected 2 validation records, got %d", len(valid))
	}
}

func TestPartitionRejectsBadInput(t *testing.T) {
	if _, _, err := Partition(nil, 0.8, 1); err == nil {
		t.Error("expected error for empty record set")
	}
	if _, _, err := Partition(syntheticRecords(5), 0, 1); err == nil {
		t.Error("expected error for zero fraction")
	}
	if _, _, err := Partition(syntheticRecords(5), 1.0, 1); err == nil {
		t.Error("expected error for fraction of 1")
	}
}

func TestSplitClasses(t *testing.T) {
	split := NewSplit(Training, syntheticRecords(10))

	classes := split.Classes()
	if len(classes) != 2 || classes[0] != 1 || classes[1] != 2 {
		t.Errorf("expected classes [1 2], got %v", classes)
	}

	dist := split.ClassDistribution()
	if dist[1] != 5 || dist[2] != 5 {
		t.Errorf("expected 5 samples per class, got %v", dist)
	}
}

func TestSplitAccessors(t *testing.T) {
	split := NewSplit(Validation, syntheticRecords(3))

	if split.Len() != 3 {
		t.Errorf("expected 3 samples, got %d", split.Len())
	}

	sample, err := split.Get(0)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sample.Path != "img_001.jpg" || sample.Class != 1 {
		t.Errorf("unexpected first sample: %+v", sample)
	}

	if _, err := split.Get(3); err == nil {
		t.Error("expected error for out-of-range index")
	}

	// Samples returns a copy, not the backing slice.
	samples := split.Samples()
	samples[0].Path = "mutated.jpg"
	sample, _ = split.Get(0)
	if sample.Path != "img_001.jpg" {
		t.Error("mutating the returned samples changed the split")
	}
}
