package model

import (
	"fmt"
	"math"

	"carvision/tensor"
)

// Keras-compatible batch normalization defaults.
const (
	batchNormEps      = 1e-3
	batchNormMomentum = 0.99
)

// BatchNormLayer normalizes each feature of a 2D batch [n, features] to zero
// mean and unit variance, then applies a learned scale and shift. Running
// statistics are tracked during training and used at inference. They are
// exposed as non-trainable parameters so snapshots and checkpoints carry
// them alongside the weights.
type BatchNormLayer struct {
	name     string
	features int
	gamma    *Parameter
	beta     *Parameter

	runningMean *Parameter
	runningVar  *Parameter

	// forward cache
	input  *tensor.Tensor
	norm   []float32
	invStd []float32
}

func NewBatchNorm(name string, features int) *BatchNormLayer {
	gamma := newParameter(name+".gamma", []int{features})
	for i := range gamma.Data.Data {
		gamma.Data.Data[i] = 1
	}
	beta := newParameter(name+".beta", []int{features})

	runningMean := newParameter(name+".running_mean", []int{features})
	runningMean.Trainable = false
	runningVar := newParameter(name+".running_var", []int{features})
	runningVar.Trainable = false
	for i := range runningVar.Data.Data {
		runningVar.Data.Data[i] = 1
	}

	return &BatchNormLayer{
		name:        name,
		features:    features,
		gamma:       gamma,
		beta:        beta,
		runningMean: runningMean,
		runningVar:  runningVar,
	}
}

func (l *BatchNormLayer) Name() string { return l.name }

func (l *BatchNormLayer) Params() []*Parameter {
	return []*Parameter{l.gamma, l.beta, l.runningMean, l.runningVar}
}

func (l *BatchNormLayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 2 || x.Shape[1] != l.features {
		return nil, fmt.Errorf("batchnorm layer %s expects input [n, %d], got %v", l.name, l.features, x.Shape)
	}
	n := x.Shape[0]
	f := l.features

	out, err := tensor.Zeros([]int{n, f})
	if err != nil {
		return nil, err
	}

	if !training {
		l.input = nil
		mean := l.runningMean.Data.Data
		variance := l.runningVar.Data.Data
		gamma := l.gamma.Data.Data
		beta := l.beta.Data.Data
		for j := 0; j < f; j++ {
			invStd := float32(1 / math.Sqrt(float64(variance[j])+batchNormEps))
			for i := 0; i < n; i++ {
				out.Data[i*f+j] = gamma[j]*(x.Data[i*f+j]-mean[j])*invStd + beta[j]
			}
		}
		return out, nil
	}

	l.input = x
	l.norm = make([]float32, n*f)
	l.invStd = make([]float32, f)

	gamma := l.gamma.Data.Data
	beta := l.beta.Data.Data
	for j := 0; j < f; j++ {
		var mean float64
		for i := 0; i < n; i++ {
			mean += float64(x.Data[i*f+j])
		}
		mean /= float64(n)

		var variance float64
		for i := 0; i < n; i++ {
			d := float64(x.Data[i*f+j]) - mean
			variance += d * d
		}
		variance /= float64(n)

		invStd := 1 / math.Sqrt(variance+batchNormEps)
		l.invStd[j] = float32(invStd)
		for i := 0; i < n; i++ {
			norm := float32((float64(x.Data[i*f+j]) - mean) * invStd)
			l.norm[i*f+j] = norm
			out.Data[i*f+j] = gamma[j]*norm + beta[j]
		}

		l.runningMean.Data.Data[j] = float32(batchNormMomentum*float64(l.runningMean.Data.Data[j]) + (1-batchNormMomentum)*mean)
		l.runningVar.Data.Data[j] = float32(batchNormMomentum*float64(l.runningVar.Data.Data[j]) + (1-batchNormMomentum)*variance)
	}
	return out, nil
}

func (l *BatchNormLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("batchnorm layer %s: Backward called before a training Forward", l.name)
	}
	n := l.input.Shape[0]
	f := l.features
	if len(grad.Shape) != 2 || grad.Shape[0] != n || grad.Shape[1] != f {
		return nil, fmt.Errorf("batchnorm layer %s expects gradient [%d, %d], got %v", l.name, n, f, grad.Shape)
	}

	gamma := l.gamma.Data.Data
	gradGamma := l.gamma.Grad.Data
	gradBeta := l.beta.Grad.Data

	gradX, err := tensor.Zeros([]int{n, f})
	if err != nil {
		return nil, err
	}

	for j := 0; j < f; j++ {
		var sumDy, sumDyNorm float64
		for i := 0; i < n; i++ {
			dy := float64(grad.Data[i*f+j])
			sumDy += dy
			sumDyNorm += dy * float64(l.norm[i*f+j])
		}

		if l.gamma.Trainable {
			gradGamma[j] += float32(sumDyNorm)
		}
		if l.beta.Trainable {
			gradBeta[j] += float32(sumDy)
		}

		scale := float64(gamma[j]) * float64(l.invStd[j]) / float64(n)
		for i := 0; i < n; i++ {
			dy := float64(grad.Data[i*f+j])
			norm := float64(l.norm[i*f+j])
			gradX.Data[i*f+j] = float32(scale * (float64(n)*dy - sumDy - norm*sumDyNorm))
		}
	}
	return gradX, nil
}
