package model

import (
	"fmt"
	"testing"

	"carvision/tensor"
)

// stubExtractor is a minimal trainable extractor for head-assembly tests: a
// single dense layer over pre-flattened [n, 1, 2, 2] inputs.
type stubExtractor struct {
	flatten *FlattenLayer
	dense   *DenseLayer
}

func newStubExtractor() *stubExtractor {
	return &stubExtractor{
		flatten: NewFlatten("stub.flatten"),
		dense:   NewDense("stub.fc", 4, 4),
	}
}

func (s *stubExtractor) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	out, err := s.flatten.Forward(x, training)
	if err != nil {
		return nil, err
	}
	out, err = s.dense.Forward(out, training)
	if err != nil {
		return nil, err
	}
	return out.Reshape([]int{x.Shape[0], 1, 2, 2})
}

func (s *stubExtractor) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	flat, err := grad.Reshape([]int{grad.Shape[0], 4})
	if err != nil {
		return nil, err
	}
	out, err := s.dense.Backward(flat)
	if err != nil {
		return nil, err
	}
	return s.flatten.Backward(out)
}

func (s *stubExtractor) OutputShape(inputSize int) ([]int, error) {
	if inputSize != 2 {
		return nil, fmt.Errorf("stub extractor only supports size 2")
	}
	return []int{1, 2, 2}, nil
}

func (s *stubExtractor) Params() []*Parameter { return s.dense.Params() }

func TestConvBackboneOutputShape(t *testing.T) {
	b := NewConvBackbone()

	shape, err := b.OutputShape(224)
	if err != nil {
		t.Fatalf("OutputShape failed: %v", err)
	}
	want := []int{512, 7, 7}
	for i, dim := range want {
		if shape[i] != dim {
			t.Fatalf("output shape = %v, want %v", shape, want)
		}
	}

	if _, err := b.OutputShape(16); err != nil {
		t.Errorf("size 16 should survive 5 halvings: %v", err)
	}
}

func TestConvBackboneLayerCount(t *testing.T) {
	b := NewConvBackbone()
	if len(b.Layers()) != 25 {
		t.Fatalf("expected 25 layers, got %d", len(b.Layers()))
	}
}

func TestFreezeKeepsLastLayersTrainable(t *testing.T) {
	b := NewConvBackbone()
	if err := b.Freeze(10); err != nil {
		t.Fatalf("Freeze failed: %v", err)
	}

	layers := b.Layers()
	for i, layer := range layers {
		wantTrainable := i >= len(layers)-10
		for _, p := range layer.Params() {
			if p.Trainable != wantTrainable {
				t.Errorf("layer %d (%s): trainable = %v, want %v", i, layer.Name(), p.Trainable, wantTrainable)
			}
		}
	}
}

func TestFreezeRejectsBadCount(t *testing.T) {
	b := NewConvBackbone()
	if err := b.Freeze(-1); err == nil {
		t.Error("expected error for negative count")
	}
	if err := b.Freeze(26); err == nil {
		t.Error("expected error for count above layer total")
	}
}

func TestConvBackboneForwardSmallInput(t *testing.T) {
	SetRandomSeed(3)
	b := NewConvBackbone()

	x, err := tensor.Zeros([]int{1, 3, 32, 32})
	if err != nil {
		t.Fatal(err)
	}
	for i := range x.Data {
		x.Data[i] = float32(i%17) / 17
	}

	out, err := b.Forward(x, true)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	want := []int{1, 512, 1, 1}
	for i, dim := range want {
		if out.Shape[i] != dim {
			t.Fatalf("output shape = %v, want %v", out.Shape, want)
		}
	}
}

func TestAssembleBuildsHead(t *testing.T) {
	SetRandomSeed(7)
	m, err := Assemble(newStubExtractor(), 5, 2)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if m.NumClasses() != 5 {
		t.Errorf("NumClasses = %d, want 5", m.NumClasses())
	}

	x := mustTensor(t, []int{3, 1, 2, 2}, make([]float32, 12))
	for i := range x.Data {
		x.Data[i] = float32(i) / 12
	}

	logits, err := m.Forward(x, true)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if logits.Shape[0] != 3 || logits.Shape[1] != 5 {
		t.Errorf("logits shape = %v, want [3 5]", logits.Shape)
	}
}

func TestAssembleRejectsTooFewClasses(t *testing.T) {
	if _, err := Assemble(newStubExtractor(), 1, 2); err == nil {
		t.Error("expected error for a single class")
	}
}

func TestModelBackwardReachesExtractor(t *testing.T) {
	SetRandomSeed(11)
	ext := newStubExtractor()
	m, err := Assemble(ext, 3, 2)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	x := mustTensor(t, []int{2, 1, 2, 2}, []float32{1, 2, 3, 4, 5, 6, 7, 8})
	logits, err := m.Forward(x, true)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if logits.Shape[1] != 3 {
		t.Fatalf("logits shape = %v, want width 3", logits.Shape)
	}

	grad := mustTensor(t, []int{2, 3}, make([]float32, 6))
	for i := range grad.Data {
		grad.Data[i] = 0.1
	}
	if err := m.Backward(grad); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	var total float32
	for _, v := range ext.dense.weights.Grad.Data {
		if v < 0 {
			total -= v
		} else {
			total += v
		}
	}
	if total == 0 {
		t.Error("trainable extractor received no gradient")
	}
}

func TestTrainableParamsExcludesFrozen(t *testing.T) {
	SetRandomSeed(13)
	ext := newStubExtractor()
	for _, p := range ext.Params() {
		p.Trainable = false
	}
	m, err := Assemble(ext, 3, 2)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	for _, p := range m.TrainableParams() {
		if !p.Trainable {
			t.Fatalf("TrainableParams returned frozen parameter %s", p.Name)
		}
		for _, e := range ext.Params() {
			if p == e {
				t.Fatalf("frozen extractor parameter %s returned as trainable", p.Name)
			}
		}
	}
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	SetRandomSeed(17)
	m, err := Assemble(newStubExtractor(), 3, 2)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	snap := m.Snapshot()

	for _, p := range m.Params() {
		for i := range p.Data.Data {
			p.Data.Data[i] += 1.5
		}
	}
	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	for _, p := range m.Params() {
		saved := snap[p.Name]
		for i := range p.Data.Data {
			if p.Data.Data[i] != saved.Data[i] {
				t.Fatalf("parameter %s not restored at element %d", p.Name, i)
			}
		}
	}
}

func TestPredictReturnsProbabilities(t *testing.T) {
	SetRandomSeed(19)
	m, err := Assemble(newStubExtractor(), 4, 2)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	x := mustTensor(t, []int{2, 1, 2, 2}, []float32{1, 0, 0, 1, 0.5, 0.5, 0.5, 0.5})
	probs, err := m.Predict(x)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		var sum float64
		for j := 0; j < 4; j++ {
			sum += float64(probs.Data[i*4+j])
		}
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("row %d probabilities sum to %f", i, sum)
		}
	}
}
