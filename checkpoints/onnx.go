package checkpoints

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ONNX wire format field numbers, from the onnx.proto3 schema. The graph is
// assembled with low-level protobuf encoding so no generated bindings are
// needed.
const (
	modelIRVersion    = 1
	modelProducerName = 2
	modelGraph        = 7
	modelOpsetImport  = 8

	graphNode        = 1
	graphName        = 2
	graphInitializer = 5
	graphInput       = 11
	graphOutput      = 12

	nodeInput     = 1
	nodeOutput    = 2
	nodeName      = 3
	nodeOpType    = 4
	nodeAttribute = 5

	tensorDims      = 1
	tensorDataType  = 2
	tensorFloatData = 4
	tensorName      = 8

	attrName  = 1
	attrFloat = 2
	attrInt   = 3
	attrType  = 20

	valueInfoName = 1
	valueInfoType = 2

	opsetVersion = 2

	onnxFloat         = 1 // TensorProto.DataType
	attrTypeFloat     = 1 // AttributeProto.AttributeType
	attrTypeInt       = 2
	exportIRVersion   = 8
	exportOpsetTarget = 13
)

// Parameter names the exported head graph expects in the checkpoint.
var headParamNames = []string{
	"head.fc1.weights", "head.fc1.bias",
	"head.bn.gamma", "head.bn.beta", "head.bn.running_mean", "head.bn.running_var",
	"head.fc2.weights", "head.fc2.bias",
}

// saveONNX writes the classifier head as an ONNX inference graph: Gemm,
// Relu, BatchNormalization, Gemm, Softmax, with every checkpoint weight
// stored as an initializer. The convolutional backbone is served from its
// own ONNX file, so only the head topology is emitted here.
func saveONNX(checkpoint *Checkpoint, path string) error {
	data, err := encodeONNX(checkpoint)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write ONNX file: %v", err)
	}
	return nil
}

func encodeONNX(checkpoint *Checkpoint) ([]byte, error) {
	byName := make(map[string]*WeightTensor, len(checkpoint.Weights))
	for i := range checkpoint.Weights {
		byName[checkpoint.Weights[i].Name] = &checkpoint.Weights[i]
	}
	for _, name := range headParamNames {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("checkpoint is missing head parameter %s", name)
		}
	}

	fc1 := byName["head.fc1.weights"]
	fc2 := byName["head.fc2.weights"]
	if len(fc1.Shape) != 2 || len(fc2.Shape) != 2 {
		return nil, fmt.Errorf("head dense weights must be 2D")
	}
	featureWidth := fc1.Shape[0]
	numClasses := fc2.Shape[1]

	var graph []byte
	graph = appendString(graph, graphName, "classifier_head")

	graph = appendNode(graph, "fc1", "Gemm",
		[]string{"features", "head.fc1.weights", "head.fc1.bias"},
		[]string{"fc1_out"}, nil)
	graph = appendNode(graph, "relu", "Relu",
		[]string{"fc1_out"}, []string{"relu_out"}, nil)
	graph = appendNode(graph, "bn", "BatchNormalization",
		[]string{"relu_out", "head.bn.gamma", "head.bn.beta", "head.bn.running_mean", "head.bn.running_var"},
		[]string{"bn_out"},
		[]attribute{{name: "epsilon", kind: attrTypeFloat, f: 1e-3}})
	graph = appendNode(graph, "fc2", "Gemm",
		[]string{"bn_out", "head.fc2.weights", "head.fc2.bias"},
		[]string{"logits"}, nil)
	graph = appendNode(graph, "softmax", "Softmax",
		[]string{"logits"}, []string{"probabilities"},
		[]attribute{{name: "axis", kind: attrTypeInt, i: 1}})

	for _, w := range checkpoint.Weights {
		graph = appendTensor(graph, graphInitializer, w)
	}

	graph = appendValueInfo(graph, graphInput, "features", []int{1, featureWidth})
	graph = appendValueInfo(graph, graphOutput, "probabilities", []int{1, numClasses})

	var opset []byte
	opset = protowire.AppendTag(opset, opsetVersion, protowire.VarintType)
	opset = protowire.AppendVarint(opset, exportOpsetTarget)

	var out []byte
	out = protowire.AppendTag(out, modelIRVersion, protowire.VarintType)
	out = protowire.AppendVarint(out, exportIRVersion)
	out = appendString(out, modelProducerName, "carvision")
	out = protowire.AppendTag(out, modelGraph, protowire.BytesType)
	out = protowire.AppendBytes(out, graph)
	out = protowire.AppendTag(out, modelOpsetImport, protowire.BytesType)
	out = protowire.AppendBytes(out, opset)
	return out, nil
}

type attribute struct {
	name string
	kind uint64
	f    float32
	i    int64
}

func appendString(buf []byte, field protowire.Number, s string) []byte {
	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, []byte(s))
}

func appendNode(buf []byte, name, opType string, inputs, outputs []string, attrs []attribute) []byte {
	var msg []byte
	for _, in := range inputs {
		msg = appendString(msg, nodeInput, in)
	}
	for _, out := range outputs {
		msg = appendString(msg, nodeOutput, out)
	}
	msg = appendString(msg, nodeName, name)
	msg = appendString(msg, nodeOpType, opType)
	for _, a := range attrs {
		var attr []byte
		attr = appendString(attr, attrName, a.name)
		switch a.kind {
		case attrTypeFloat:
			attr = protowire.AppendTag(attr, attrFloat, protowire.Fixed32Type)
			attr = protowire.AppendFixed32(attr, math.Float32bits(a.f))
		case attrTypeInt:
			attr = protowire.AppendTag(attr, attrInt, protowire.VarintType)
			attr = protowire.AppendVarint(attr, uint64(a.i))
		}
		attr = protowire.AppendTag(attr, attrType, protowire.VarintType)
		attr = protowire.AppendVarint(attr, a.kind)
		msg = protowire.AppendTag(msg, nodeAttribute, protowire.BytesType)
		msg = protowire.AppendBytes(msg, attr)
	}
	buf = protowire.AppendTag(buf, graphNode, protowire.BytesType)
	return protowire.AppendBytes(buf, msg)
}

func appendTensor(buf []byte, field protowire.Number, w WeightTensor) []byte {
	var msg []byte
	for _, dim := range w.Shape {
		msg = protowire.AppendTag(msg, tensorDims, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(dim))
	}
	msg = protowire.AppendTag(msg, tensorDataType, protowire.VarintType)
	msg = protowire.AppendVarint(msg, onnxFloat)

	packed := make([]byte, 0, len(w.Data)*4)
	for _, v := range w.Data {
		packed = protowire.AppendFixed32(packed, math.Float32bits(v))
	}
	msg = protowire.AppendTag(msg, tensorFloatData, protowire.BytesType)
	msg = protowire.AppendBytes(msg, packed)
	msg = appendString(msg, tensorName, w.Name)

	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, msg)
}

// appendValueInfo encodes a ValueInfoProto with a float tensor type of the
// given static shape.
func appendValueInfo(buf []byte, field protowire.Number, name string, shape []int) []byte {
	// TensorShapeProto: repeated Dimension, each with dim_value (field 1).
	var shapeMsg []byte
	for _, dim := range shape {
		var dimMsg []byte
		dimMsg = protowire.AppendTag(dimMsg, 1, protowire.VarintType)
		dimMsg = protowire.AppendVarint(dimMsg, uint64(dim))
		shapeMsg = protowire.AppendTag(shapeMsg, 1, protowire.BytesType)
		shapeMsg = protowire.AppendBytes(shapeMsg, dimMsg)
	}

	// TypeProto.Tensor: elem_type (1), shape (2).
	var tensorType []byte
	tensorType = protowire.AppendTag(tensorType, 1, protowire.VarintType)
	tensorType = protowire.AppendVarint(tensorType, onnxFloat)
	tensorType = protowire.AppendTag(tensorType, 2, protowire.BytesType)
	tensorType = protowire.AppendBytes(tensorType, shapeMsg)

	// TypeProto: tensor_type (1).
	var typeMsg []byte
	typeMsg = protowire.AppendTag(typeMsg, 1, protowire.BytesType)
	typeMsg = protowire.AppendBytes(typeMsg, tensorType)

	var msg []byte
	msg = appendString(msg, valueInfoName, name)
	msg = protowire.AppendTag(msg, valueInfoType, protowire.BytesType)
	msg = protowire.AppendBytes(msg, typeMsg)

	buf = protowire.AppendTag(buf, field, protowire.BytesType)
	return protowire.AppendBytes(buf, msg)
}

// loadONNX reads back the initializer tensors of an exported file. Training
// state is not stored in ONNX, so only weights are recovered.
func loadONNX(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ONNX file: %v", err)
	}

	graph, err := findField(data, modelGraph)
	if err != nil {
		return nil, fmt.Errorf("malformed ONNX model: %v", err)
	}

	var checkpoint Checkpoint
	if err := eachField(graph, func(num protowire.Number, payload []byte) error {
		if num != graphInitializer {
			return nil
		}
		w, err := parseTensor(payload)
		if err != nil {
			return err
		}
		checkpoint.Weights = append(checkpoint.Weights, w)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("malformed ONNX graph: %v", err)
	}
	checkpoint.Metadata.Framework = "carvision"
	return &checkpoint, nil
}

// findField returns the payload of the first length-delimited field with
// the given number.
func findField(data []byte, want protowire.Number) ([]byte, error) {
	var found []byte
	err := eachField(data, func(num protowire.Number, payload []byte) error {
		if num == want && found == nil {
			found = payload
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("field %d not present", want)
	}
	return found, nil
}

// eachField walks a serialized message, invoking fn for every
// length-delimited field and skipping scalar fields.
func eachField(data []byte, fn func(num protowire.Number, payload []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch typ {
		case protowire.BytesType:
			payload, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, payload); err != nil {
				return err
			}
			data = data[n:]
		case protowire.VarintType:
			_, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
		default:
			return fmt.Errorf("unsupported wire type %d", typ)
		}
	}
	return nil
}

func parseTensor(data []byte) (WeightTensor, error) {
	var w WeightTensor
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return w, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == tensorDims && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return w, protowire.ParseError(n)
			}
			w.Shape = append(w.Shape, int(v))
			data = data[n:]
		case num == tensorFloatData && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return w, protowire.ParseError(n)
			}
			for len(packed) > 0 {
				bits, m := protowire.ConsumeFixed32(packed)
				if m < 0 {
					return w, protowire.ParseError(m)
				}
				w.Data = append(w.Data, math.Float32frombits(uint32(bits)))
				packed = packed[m:]
			}
			data = data[n:]
		case num == tensorName && typ == protowire.BytesType:
			name, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return w, protowire.ParseError(n)
			}
			w.Name = string(name)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return w, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return w, nil
}
