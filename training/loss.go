// Package training implements the fit loop with early stopping, the loss,
// the learning rate schedulers, and the evaluation metrics.
package training

import (
	"fmt"
	"math"

	"carvision/model"
	"carvision/tensor"
)

// CategoricalCrossEntropy computes softmax cross-entropy against one-hot
// labels. Loss returns both the mean batch loss and the gradient with
// respect to the logits, fusing softmax into the backward pass for
// numerical stability.
type CategoricalCrossEntropy struct{}

// Loss takes logits [n, classes] and one-hot labels of the same shape.
func (CategoricalCrossEntropy) Loss(logits, labels *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return 0, nil, fmt.Errorf("logits must be 2D, got shape %v", logits.Shape)
	}
	if !tensor.SameShape(logits, labels) {
		return 0, nil, fmt.Errorf("labels shape %v doesn't match logits %v", labels.Shape, logits.Shape)
	}

	probs, err := model.Softmax(logits)
	if err != nil {
		return 0, nil, err
	}

	n, classes := logits.Shape[0], logits.Shape[1]
	grad, err := tensor.Zeros([]int{n, classes})
	if err != nil {
		return 0, nil, err
	}

	var total float64
	scale := float32(1) / float32(n)
	for i := 0; i < n; i++ {
		for j := 0; j < classes; j++ {
			idx := i*classes + j
			p := probs.Data[idx]
			y := labels.Data[idx]
			if y > 0 {
				total -= float64(y) * math.Log(math.Max(float64(p), 1e-12))
			}
			// d(mean CE)/d(logit) = (softmax - y) / n
			grad.Data[idx] = (p - y) * scale
		}
	}
	return total / float64(n), grad, nil
}
