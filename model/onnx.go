package model

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"carvision/tensor"
)

// OnnxExtractor runs a pretrained backbone through the ONNX Runtime. It is
// inherently frozen: it exposes no parameters and rejects Backward, so only
// the classifier head trains on top of it.
type OnnxExtractor struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
	featureShape []int
}

// OnnxConfig describes the exported backbone graph.
type OnnxConfig struct {
	ModelPath    string
	InputName    string // graph input name (default "input")
	OutputName   string // graph output name (default "output")
	InputSize    int    // square input size (default 224)
	FeatureShape []int  // per-sample output shape, e.g. [512, 7, 7]
}

// NewOnnxExtractor initializes the ONNX environment and opens a session
// with single-sample input and output tensors. Batches are run one sample
// at a time. Call Close when done.
func NewOnnxExtractor(config OnnxConfig) (*OnnxExtractor, error) {
	if len(config.FeatureShape) == 0 {
		return nil, fmt.Errorf("feature shape is required")
	}
	if config.InputName == "" {
		config.InputName = "input"
	}
	if config.OutputName == "" {
		config.OutputName = "output"
	}
	if config.InputSize <= 0 {
		config.InputSize = 224
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputShape := ort.NewShape(1, 3, int64(config.InputSize), int64(config.InputSize))
	outputDims := make([]int64, 0, len(config.FeatureShape)+1)
	outputDims = append(outputDims, 1)
	for _, dim := range config.FeatureShape {
		outputDims = append(outputDims, int64(dim))
	}
	outputShape := ort.NewShape(outputDims...)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(config.ModelPath,
		[]string{config.InputName}, []string{config.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	shapeCopy := make([]int, len(config.FeatureShape))
	copy(shapeCopy, config.FeatureShape)
	return &OnnxExtractor{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputSize:    config.InputSize,
		featureShape: shapeCopy,
	}, nil
}

func (e *OnnxExtractor) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 4 || x.Shape[1] != 3 || x.Shape[2] != e.inputSize || x.Shape[3] != e.inputSize {
		return nil, fmt.Errorf("onnx extractor expects input [n, 3, %d, %d], got %v", e.inputSize, e.inputSize, x.Shape)
	}
	n := x.Shape[0]
	sampleIn := 3 * e.inputSize * e.inputSize
	sampleOut := 1
	for _, dim := range e.featureShape {
		sampleOut *= dim
	}

	outShape := append([]int{n}, e.featureShape...)
	out, err := tensor.Zeros(outShape)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		copy(e.inputTensor.GetData(), x.Data[i*sampleIn:(i+1)*sampleIn])
		if err := e.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed on sample %d: %w", i, err)
		}
		copy(out.Data[i*sampleOut:(i+1)*sampleOut], e.outputTensor.GetData())
	}
	return out, nil
}

func (e *OnnxExtractor) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	return nil, fmt.Errorf("onnx extractor is frozen and cannot backpropagate")
}

func (e *OnnxExtractor) OutputShape(inputSize int) ([]int, error) {
	if inputSize != e.inputSize {
		return nil, fmt.Errorf("onnx extractor is fixed to %d pixel inputs, got %d", e.inputSize, inputSize)
	}
	shapeCopy := make([]int, len(e.featureShape))
	copy(shapeCopy, e.featureShape)
	return shapeCopy, nil
}

func (e *OnnxExtractor) Params() []*Parameter { return nil }

// Close releases the session and its tensors.
func (e *OnnxExtractor) Close() {
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
	if e.session != nil {
		e.session.Destroy()
	}
	ort.DestroyEnvironment()
}

// PrepareImageFile decodes one image file and converts it to a normalized
// CHW tensor of shape [1, 3, size, size], for single-image prediction.
func PrepareImageFile(path string, size int) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	out, err := tensor.Zeros([]int{1, 3, size, size})
	if err != nil {
		return nil, err
	}
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			pos := y*size + x
			out.Data[pos] = float32(r) / 65535.0
			out.Data[plane+pos] = float32(g) / 65535.0
			out.Data[2*plane+pos] = float32(b) / 65535.0
		}
	}
	return out, nil
}
