// Package checkpoints persists trained model weights, in JSON for resuming
// runs and in ONNX for serving the classifier head.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"carvision/model"
)

// CheckpointFormat defines the serialization format.
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatONNX
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatONNX:
		return "ONNX"
	default:
		return "Unknown"
	}
}

// WeightTensor is one named parameter tensor with its data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures where training left off.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	BestValLoss  float64 `json:"best_val_loss"`
	LearningRate float64 `json:"learning_rate"`
}

// CheckpointMetadata describes the saved model.
type CheckpointMetadata struct {
	Version   string    `json:"version"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
	Classes   []int     `json:"classes,omitempty"` // one-hot column to class label
}

// Checkpoint is a complete saved model state.
type Checkpoint struct {
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// FromModel captures the current weights of a model, head and extractor
// alike, including non-trainable running statistics.
func FromModel(m *model.ClassificationModel, state TrainingState, classes []int) *Checkpoint {
	params := m.Params()
	weights := make([]WeightTensor, 0, len(params))
	for _, p := range params {
		shape := make([]int, len(p.Data.Shape))
		copy(shape, p.Data.Shape)
		data := make([]float32, len(p.Data.Data))
		copy(data, p.Data.Data)
		weights = append(weights, WeightTensor{Name: p.Name, Shape: shape, Data: data})
	}
	return &Checkpoint{
		Weights:       weights,
		TrainingState: state,
		Metadata: CheckpointMetadata{
			Version:   "1.0.0",
			Framework: "carvision",
			CreatedAt: time.Now().UTC(),
			Classes:   classes,
		},
	}
}

// Apply loads checkpoint weights into a model by parameter name.
func (c *Checkpoint) Apply(m *model.ClassificationModel) error {
	byName := make(map[string]*WeightTensor, len(c.Weights))
	for i := range c.Weights {
		byName[c.Weights[i].Name] = &c.Weights[i]
	}

	for _, p := range m.Params() {
		saved, ok := byName[p.Name]
		if !ok {
			return fmt.Errorf("checkpoint is missing parameter %s", p.Name)
		}
		if len(saved.Data) != p.Data.NumElems() {
			return fmt.Errorf("parameter %s has %d elements, checkpoint has %d",
				p.Name, p.Data.NumElems(), len(saved.Data))
		}
		copy(p.Data.Data, saved.Data)
	}
	return nil
}

// Saver writes and reads checkpoints in a fixed format.
type Saver struct {
	format CheckpointFormat
}

// NewSaver creates a checkpoint saver for the given format.
func NewSaver(format CheckpointFormat) *Saver {
	return &Saver{format: format}
}

// Save writes the checkpoint to path.
func (s *Saver) Save(checkpoint *Checkpoint, path string) error {
	switch s.format {
	case FormatJSON:
		return saveJSON(checkpoint, path)
	case FormatONNX:
		return saveONNX(checkpoint, path)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

// Load reads a checkpoint from path. Only JSON checkpoints round-trip the
// full training state; ONNX files carry weights only.
func (s *Saver) Load(path string) (*Checkpoint, error) {
	switch s.format {
	case FormatJSON:
		return loadJSON(path)
	case FormatONNX:
		return loadONNX(path)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", s.format)
	}
}

func saveJSON(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}
	return nil
}

func loadJSON(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}
	return &checkpoint, nil
}
