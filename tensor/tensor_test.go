package tensor

import (
	"testing"
)

func TestNewValidatesDataSize(t *testing.T) {
	if _, err := New([]int{2, 3}, make([]float32, 6)); err != nil {
		t.Errorf("expected valid tensor, got error: %v", err)
	}

	if _, err := New([]int{2, 3}, make([]float32, 5)); err == nil {
		t.Error("expected error for mismatched data size")
	}

	if _, err := New([]int{2, 0}, nil); err == nil {
		t.Error("expected error for zero dimension")
	}

	if _, err := New(nil, nil); err == nil {
		t.Error("expected error for empty shape")
	}
}

func TestZeros(t *testing.T) {
	z, err := Zeros([]int{4, 2})
	if err != nil {
		t.Fatalf("Zeros failed: %v", err)
	}

	if z.NumElems() != 8 {
		t.Errorf("expected 8 elements, got %d", z.NumElems())
	}

	for i, v := range z.Data {
		if v != 0 {
			t.Errorf("element %d: expected 0, got %f", i, v)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig, _ := New([]int{2, 2}, []float32{1, 2, 3, 4})
	clone := orig.Clone()

	clone.Data[0] = 99
	if orig.Data[0] != 1 {
		t.Error("mutating clone changed the original")
	}

	if !SameShape(orig, clone) {
		t.Error("clone shape differs from original")
	}
}

func TestReshapeSharesData(t *testing.T) {
	orig, _ := New([]int{2, 6}, make([]float32, 12))

	view, err := orig.Reshape([]int{3, 4})
	if err != nil {
		t.Fatalf("Reshape failed: %v", err)
	}

	view.Data[0] = 7
	if orig.Data[0] != 7 {
		t.Error("reshaped view should share data with the original")
	}

	if _, err := orig.Reshape([]int{5, 5}); err == nil {
		t.Error("expected error for element count mismatch")
	}
}

func TestArgmax(t *testing.T) {
	tt, _ := New([]int{2, 3}, []float32{0.1, 0.7, 0.2, 0.5, 0.3, 0.2})

	idx, err := tt.Argmax(0)
	if err != nil {
		t.Fatalf("Argmax failed: %v", err)
	}
	if idx != 1 {
		t.Errorf("row 0: expected argmax 1, got %d", idx)
	}

	idx, _ = tt.Argmax(1)
	if idx != 0 {
		t.Errorf("row 1: expected argmax 0, got %d", idx)
	}

	if _, err := tt.Argmax(2); err == nil {
		t.Error("expected error for out-of-range row")
	}
}
