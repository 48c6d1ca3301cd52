package training

import (
	"math"
	"testing"
)

func TestConfusionMatrixAccuracy(t *testing.T) {
	cm := NewConfusionMatrix(3)
	outcomes := [][2]int{
		{0, 0}, {0, 0}, {0, 1},
		{1, 1}, {1, 1},
		{2, 2}, {2, 0},
	}
	for _, o := range outcomes {
		if err := cm.Add(o[0], o[1]); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	if got := cm.Accuracy(); math.Abs(got-5.0/7.0) > 1e-9 {
		t.Errorf("accuracy = %f, want %f", got, 5.0/7.0)
	}
	if cm.TotalSamples != 7 {
		t.Errorf("total samples = %d, want 7", cm.TotalSamples)
	}
}

func TestPerfectPredictionsGiveUnitMetrics(t *testing.T) {
	cm := NewConfusionMatrix(4)
	for c := 0; c < 4; c++ {
		for i := 0; i < 3; i++ {
			if err := cm.Add(c, c); err != nil {
				t.Fatalf("Add failed: %v", err)
			}
		}
	}

	checks := map[string]float64{
		"accuracy":       cm.Accuracy(),
		"macroPrecision": cm.MacroPrecision(),
		"macroRecall":    cm.MacroRecall(),
		"macroF1":        cm.MacroF1(),
	}
	for name, got := range checks {
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("%s = %f, want 1", name, got)
		}
	}
}

func TestAbsentClassContributesZero(t *testing.T) {
	// Class 2 never appears as truth or prediction. With a 3-class label
	// space the macro averages still divide by 3.
	cm := NewConfusionMatrix(3)
	for i := 0; i < 5; i++ {
		if err := cm.Add(0, 0); err != nil {
			t.Fatal(err)
		}
		if err := cm.Add(1, 1); err != nil {
			t.Fatal(err)
		}
	}

	want := 2.0 / 3.0
	if got := cm.MacroPrecision(); math.Abs(got-want) > 1e-9 {
		t.Errorf("macro precision = %f, want %f", got, want)
	}
	if got := cm.MacroRecall(); math.Abs(got-want) > 1e-9 {
		t.Errorf("macro recall = %f, want %f", got, want)
	}
	if got := cm.MacroF1(); math.Abs(got-want) > 1e-9 {
		t.Errorf("macro F1 = %f, want %f", got, want)
	}
}

func TestNeverPredictedClassHasZeroPrecision(t *testing.T) {
	// Class 1 exists in the data but the model never predicts it.
	cm := NewConfusionMatrix(2)
	if err := cm.Add(0, 0); err != nil {
		t.Fatal(err)
	}
	if err := cm.Add(1, 0); err != nil {
		t.Fatal(err)
	}

	if got := cm.classPrecision(1); got != 0 {
		t.Errorf("precision of never-predicted class = %f, want 0", got)
	}
	if got := cm.classF1(1); got != 0 {
		t.Errorf("F1 of never-predicted class = %f, want 0", got)
	}
}

func TestMacroF1IsMeanOfPerClassF1(t *testing.T) {
	cm := NewConfusionMatrix(2)
	// Class 0: 3 tp, 1 fn, 1 fp. Class 1: 1 tp, 1 fn, 1 fp.
	for i := 0; i < 3; i++ {
		if err := cm.Add(0, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := cm.Add(0, 1); err != nil {
		t.Fatal(err)
	}
	if err := cm.Add(1, 0); err != nil {
		t.Fatal(err)
	}
	if err := cm.Add(1, 1); err != nil {
		t.Fatal(err)
	}

	f0 := cm.classF1(0)
	f1 := cm.classF1(1)
	want := (f0 + f1) / 2
	if got := cm.MacroF1(); math.Abs(got-want) > 1e-9 {
		t.Errorf("macro F1 = %f, want mean of per-class scores %f", got, want)
	}

	// Distinct from the harmonic mean of macro precision and recall.
	p, r := cm.MacroPrecision(), cm.MacroRecall()
	harmonic := 2 * p * r / (p + r)
	if math.Abs(want-harmonic) < 1e-12 {
		t.Log("per-class mean coincides with harmonic mean for this matrix")
	}
}

func TestUpdateFromBatch(t *testing.T) {
	cm := NewConfusionMatrix(3)
	scores := mustTensor(t, []int{3, 3}, []float32{
		0.9, 0.05, 0.05,
		0.1, 0.2, 0.7,
		0.3, 0.4, 0.3,
	})
	labels := mustTensor(t, []int{3, 3}, []float32{
		1, 0, 0,
		0, 0, 1,
		1, 0, 0,
	})

	if err := cm.Update(scores, labels); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if cm.Matrix[0][0] != 1 || cm.Matrix[2][2] != 1 || cm.Matrix[0][1] != 1 {
		t.Errorf("unexpected matrix contents: %v", cm.Matrix)
	}
	if got := cm.Accuracy(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("accuracy = %f, want %f", got, 2.0/3.0)
	}
}

func TestAddRejectsOutOfRange(t *testing.T) {
	cm := NewConfusionMatrix(2)
	if err := cm.Add(2, 0); err == nil {
		t.Error("expected error for out-of-range true class")
	}
	if err := cm.Add(0, -1); err == nil {
		t.Error("expected error for out-of-range predicted class")
	}
}

func TestResetClearsCounts(t *testing.T) {
	cm := NewConfusionMatrix(2)
	if err := cm.Add(0, 0); err != nil {
		t.Fatal(err)
	}
	cm.Reset()
	if cm.TotalSamples != 0 || cm.Matrix[0][0] != 0 {
		t.Error("Reset left counts behind")
	}
	if cm.Accuracy() != 0 {
		t.Error("empty matrix accuracy should be 0")
	}
}
