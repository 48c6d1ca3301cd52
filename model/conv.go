package model

import (
	"fmt"

	"carvision/tensor"
)

// Conv2DLayer is a 2D convolution over NCHW batches with square kernels and
// zero padding.
type Conv2DLayer struct {
	name        string
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	weights     *Parameter // [out, in, k, k]
	bias        *Parameter // [out]

	input *tensor.Tensor
}

// NewConv2D creates a convolution layer with Xavier-initialized kernels.
func NewConv2D(name string, inChannels, outChannels, kernelSize, stride, padding int) *Conv2DLayer {
	weights := newParameter(name+".weights", []int{outChannels, inChannels, kernelSize, kernelSize})
	fan := inChannels * kernelSize * kernelSize
	xavierInit(weights, fan, outChannels*kernelSize*kernelSize)
	bias := newParameter(name+".bias", []int{outChannels})
	return &Conv2DLayer{
		name:        name,
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weights:     weights,
		bias:        bias,
	}
}

func (l *Conv2DLayer) Name() string { return l.name }

func (l *Conv2DLayer) Params() []*Parameter {
	return []*Parameter{l.weights, l.bias}
}

func (l *Conv2DLayer) outputSize(in int) int {
	return (in+2*l.padding-l.kernelSize)/l.stride + 1
}

func (l *Conv2DLayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || x.Shape[1] != l.inChannels {
		return nil, fmt.Errorf("conv layer %s expects input [n, %d, h, w], got %v", l.name, l.inChannels, x.Shape)
	}
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	outH, outW := l.outputSize(h), l.outputSize(w)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv layer %s: input %dx%d too small for kernel %d", l.name, h, w, l.kernelSize)
	}
	l.input = x

	out, err := tensor.Zeros([]int{n, l.outChannels, outH, outW})
	if err != nil {
		return nil, err
	}

	k := l.kernelSize
	wData := l.weights.Data.Data
	bData := l.bias.Data.Data
	for i := 0; i < n; i++ {
		for o := 0; o < l.outChannels; o++ {
			outPlane := out.Data[(i*l.outChannels+o)*outH*outW:]
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					sum := bData[o]
					for c := 0; c < l.inChannels; c++ {
						inPlane := x.Data[(i*l.inChannels+c)*h*w:]
						kBase := ((o*l.inChannels + c) * k) * k
						for ky := 0; ky < k; ky++ {
							sy := oy*l.stride + ky - l.padding
							if sy < 0 || sy >= h {
								continue
							}
							for kx := 0; kx < k; kx++ {
								sx := ox*l.stride + kx - l.padding
								if sx < 0 || sx >= w {
									continue
								}
								sum += inPlane[sy*w+sx] * wData[kBase+ky*k+kx]
							}
						}
					}
					outPlane[oy*outW+ox] = sum
				}
			}
		}
	}
	return out, nil
}

func (l *Conv2DLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.input == nil {
		return nil, fmt.Errorf("conv layer %s: Backward called before Forward", l.name)
	}
	x := l.input
	n, h, w := x.Shape[0], x.Shape[2], x.Shape[3]
	outH, outW := l.outputSize(h), l.outputSize(w)
	if len(grad.Shape) != 4 || grad.Shape[0] != n || grad.Shape[1] != l.outChannels ||
		grad.Shape[2] != outH || grad.Shape[3] != outW {
		return nil, fmt.Errorf("conv layer %s expects gradient [%d, %d, %d, %d], got %v",
			l.name, n, l.outChannels, outH, outW, grad.Shape)
	}

	gradX, err := tensor.Zeros([]int{n, l.inChannels, h, w})
	if err != nil {
		return nil, err
	}

	k := l.kernelSize
	wData := l.weights.Data.Data
	gradW := l.weights.Grad.Data
	gradB := l.bias.Grad.Data
	for i := 0; i < n; i++ {
		for o := 0; o < l.outChannels; o++ {
			gPlane := grad.Data[(i*l.outChannels+o)*outH*outW:]
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					g := gPlane[oy*outW+ox]
					if g == 0 {
						continue
					}
					if l.bias.Trainable {
						gradB[o] += g
					}
					for c := 0; c < l.inChannels; c++ {
						inPlane := x.Data[(i*l.inChannels+c)*h*w:]
						gxPlane := gradX.Data[(i*l.inChannels+c)*h*w:]
						kBase := ((o*l.inChannels + c) * k) * k
						for ky := 0; ky < k; ky++ {
							sy := oy*l.stride + ky - l.padding
							if sy < 0 || sy >= h {
								continue
							}
							for kx := 0; kx < k; kx++ {
								sx := ox*l.stride + kx - l.padding
								if sx < 0 || sx >= w {
									continue
								}
								if l.weights.Trainable {
									gradW[kBase+ky*k+kx] += inPlane[sy*w+sx] * g
								}
								gxPlane[sy*w+sx] += wData[kBase+ky*k+kx] * g
							}
						}
					}
				}
			}
		}
	}
	return gradX, nil
}

// MaxPool2DLayer downsamples NCHW batches by taking the maximum over
// non-overlapping square windows.
type MaxPool2DLayer struct {
	name     string
	poolSize int

	inputShape []int
	argmax     []int
}

func NewMaxPool2D(name string, poolSize int) *MaxPool2DLayer {
	return &MaxPool2DLayer{name: name, poolSize: poolSize}
}

func (l *MaxPool2DLayer) Name() string         { return l.name }
func (l *MaxPool2DLayer) Params() []*Parameter { return nil }

func (l *MaxPool2DLayer) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 {
		return nil, fmt.Errorf("maxpool layer %s expects a 4D input, got %v", l.name, x.Shape)
	}
	n, c, h, w := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	p := l.poolSize
	outH, outW := h/p, w/p
	if outH == 0 || outW == 0 {
		return nil, fmt.Errorf("maxpool layer %s: input %dx%d smaller than pool %d", l.name, h, w, p)
	}

	l.inputShape = make([]int, 4)
	copy(l.inputShape, x.Shape)

	out, err := tensor.Zeros([]int{n, c, outH, outW})
	if err != nil {
		return nil, err
	}
	l.argmax = make([]int, len(out.Data))

	for i := 0; i < n; i++ {
		for ch := 0; ch < c; ch++ {
			inPlane := x.Data[(i*c+ch)*h*w:]
			base := (i*c + ch) * outH * outW
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					bestIdx := (oy*p)*w + ox*p
					best := inPlane[bestIdx]
					for py := 0; py < p; py++ {
						for px := 0; px < p; px++ {
							idx := (oy*p+py)*w + ox*p + px
							if inPlane[idx] > best {
								best = inPlane[idx]
								bestIdx = idx
							}
						}
					}
					pos := base + oy*outW + ox
					out.Data[pos] = best
					l.argmax[pos] = (i*c+ch)*h*w + bestIdx
				}
			}
		}
	}
	return out, nil
}

func (l *MaxPool2DLayer) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	if l.argmax == nil {
		return nil, fmt.Errorf("maxpool layer %s: Backward called before Forward", l.name)
	}
	if len(grad.Data) != len(l.argmax) {
		return nil, fmt.Errorf("maxpool layer %s: gradient size %d doesn't match pooled output %d", l.name, len(grad.Data), len(l.argmax))
	}

	gradX, err := tensor.Zeros(l.inputShape)
	if err != nil {
		return nil, err
	}
	for i, src := range l.argmax {
		gradX.Data[src] += grad.Data[i]
	}
	return gradX, nil
}
