package model

import (
	"fmt"

	"carvision/tensor"
)

// FeatureExtractor produces a spatial feature map from an NCHW image batch.
// The classifier head is assembled on top of whatever implementation is
// plugged in, so a pure-Go backbone and an ONNX-backed one are
// interchangeable.
type FeatureExtractor interface {
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)

	// Backward propagates gradients into the extractor's trainable layers.
	// Extractors without trainable layers reject the call.
	Backward(grad *tensor.Tensor) (*tensor.Tensor, error)

	// OutputShape returns the per-sample feature shape for a square input
	// of the given size, e.g. [512, 7, 7] for 224.
	OutputShape(inputSize int) ([]int, error)

	Params() []*Parameter
}

// Freezer is the optional fine-tuning capability of a feature extractor.
// Extractors that are inherently frozen simply don't implement it.
type Freezer interface {
	// Freeze marks every layer except the last keepTrainable as frozen.
	Freeze(keepTrainable int) error
}

// Standard backbone geometry: five conv blocks halving the spatial size,
// so 224x224 inputs come out as 512x7x7 feature maps.
var backboneChannels = []int{64, 128, 256, 512, 512}

// ConvBackbone is a VGG-style convolutional feature extractor: five blocks
// of (conv, relu, conv, relu, maxpool), 25 layers in total. It supports
// partial fine-tuning through Freeze.
type ConvBackbone struct {
	layers []Layer
}

// NewConvBackbone builds the backbone with freshly initialized weights. For
// transfer learning, load pretrained weights into Params afterwards and call
// Freeze before assembling the classifier.
func NewConvBackbone() *ConvBackbone {
	var layers []Layer
	in := 3
	for b, out := range backboneChannels {
		block := b + 1
		layers = append(layers,
			NewConv2D(fmt.Sprintf("block%d.conv1", block), in, out, 3, 1, 1),
			NewReLU(fmt.Sprintf("block%d.relu1", block)),
			NewConv2D(fmt.Sprintf("block%d.conv2", block), out, out, 3, 1, 1),
			NewReLU(fmt.Sprintf("block%d.relu2", block)),
			NewMaxPool2D(fmt.Sprintf("block%d.pool", block), 2),
		)
		in = out
	}
	return &ConvBackbone{layers: layers}
}

// Layers returns the backbone layers in forward order.
func (b *ConvBackbone) Layers() []Layer {
	return b.layers
}

func (b *ConvBackbone) Params() []*Parameter {
	var params []*Parameter
	for _, layer := range b.layers {
		params = append(params, layer.Params()...)
	}
	return params
}

// Freeze disables training for all layers except the last keepTrainable.
// With keepTrainable 10, the last two conv blocks stay tunable and the
// earlier generic filters are preserved.
func (b *ConvBackbone) Freeze(keepTrainable int) error {
	if keepTrainable < 0 || keepTrainable > len(b.layers) {
		return fmt.Errorf("keepTrainable %d out of range [0, %d]", keepTrainable, len(b.layers))
	}
	boundary := len(b.layers) - keepTrainable
	for i, layer := range b.layers {
		trainable := i >= boundary
		for _, p := range layer.Params() {
			p.Trainable = trainable
		}
	}
	return nil
}

func (b *ConvBackbone) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	out := x
	var err error
	for _, layer := range b.layers {
		out, err = layer.Forward(out, training)
		if err != nil {
			return nil, fmt.Errorf("backbone forward failed at %s: %w", layer.Name(), err)
		}
	}
	return out, nil
}

func (b *ConvBackbone) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	out := grad
	var err error
	for i := len(b.layers) - 1; i >= 0; i-- {
		out, err = b.layers[i].Backward(out)
		if err != nil {
			return nil, fmt.Errorf("backbone backward failed at %s: %w", b.layers[i].Name(), err)
		}
	}
	return out, nil
}

// OutputShape computes the feature map shape for a square input. Each block
// halves the spatial size.
func (b *ConvBackbone) OutputShape(inputSize int) ([]int, error) {
	size := inputSize
	for range backboneChannels {
		size /= 2
	}
	if size < 1 {
		return nil, fmt.Errorf("input size %d too small for %d pooling stages", inputSize, len(backboneChannels))
	}
	return []int{backboneChannels[len(backboneChannels)-1], size, size}, nil
}
