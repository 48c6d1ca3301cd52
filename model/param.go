// Package model implements the neural network layers, the convolutional
// feature extractor, and the transfer-learning classifier head assembly.
package model

import (
	"math"
	"math/rand"
	"sync"

	"carvision/tensor"
)

var (
	rngMu     sync.Mutex
	globalRng = rand.New(rand.NewSource(42))
)

// SetRandomSeed reseeds weight initialization and dropout sampling so runs
// are reproducible end to end.
func SetRandomSeed(seed int64) {
	rngMu.Lock()
	defer rngMu.Unlock()
	globalRng = rand.New(rand.NewSource(seed))
}

// randFloat64 draws from the shared initialization rng.
func randFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return globalRng.Float64()
}

// Parameter is one learnable tensor together with its gradient accumulator.
// Optimizers update Data in place for trainable parameters only; frozen
// parameters keep their values for the whole run.
type Parameter struct {
	Name      string
	Data      *tensor.Tensor
	Grad      *tensor.Tensor
	Trainable bool
}

func newParameter(name string, shape []int) *Parameter {
	data, err := tensor.Zeros(shape)
	if err != nil {
		panic(err)
	}
	grad, err := tensor.Zeros(shape)
	if err != nil {
		panic(err)
	}
	return &Parameter{Name: name, Data: data, Grad: grad, Trainable: true}
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	for i := range p.Grad.Data {
		p.Grad.Data[i] = 0
	}
}

// xavierInit fills a parameter with Xavier/Glorot uniform values scaled by
// the layer's fan-in and fan-out.
func xavierInit(p *Parameter, fanIn, fanOut int) {
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range p.Data.Data {
		p.Data.Data[i] = float32((randFloat64()*2 - 1) * limit)
	}
}
