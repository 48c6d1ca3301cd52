// Package config holds the JSON pipeline configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the full pipeline configuration.
type Config struct {
	Data     DataConfig     `json:"data"`
	Training TrainingConfig `json:"training"`
	Augment  AugmentConfig  `json:"augment"`
	Output   OutputConfig   `json:"output"`
}

// DataConfig locates the raw dataset and controls the split.
type DataConfig struct {
	AnnotationsPath string  `json:"annotations_path"`
	ImagesDir       string  `json:"images_dir"`
	TestAnnotations string  `json:"test_annotations,omitempty"`
	TestImagesDir   string  `json:"test_images_dir,omitempty"`
	TrainFraction   float64 `json:"train_fraction"`
	Seed            int64   `json:"seed"`
	CropQuality     int     `json:"crop_quality"`
	Workers         int     `json:"workers"`
}

// TrainingConfig holds the fit loop hyperparameters.
type TrainingConfig struct {
	Epochs        int     `json:"epochs"`
	BatchSize     int     `json:"batch_size"`
	ImageSize     int     `json:"image_size"`
	LearningRate  float64 `json:"learning_rate"`
	EarlyStopping bool    `json:"early_stopping"`
	Patience      int     `json:"patience"`
	CacheSize     int     `json:"cache_size"`

	// PretrainedPath optionally names a JSON checkpoint whose weights are
	// applied to the assembled model before the fit loop starts.
	PretrainedPath string `json:"pretrained_checkpoint,omitempty"`

	// BackboneOnnxPath optionally serves the feature extractor from an
	// exported ONNX backbone instead of the built-in convolutional one.
	// The feature shape is the per-sample output of that graph.
	BackboneOnnxPath     string `json:"backbone_onnx_path,omitempty"`
	BackboneInputName    string `json:"backbone_input_name,omitempty"`
	BackboneOutputName   string `json:"backbone_output_name,omitempty"`
	BackboneFeatureShape []int  `json:"backbone_feature_shape,omitempty"`
}

// AugmentConfig mirrors the training feeder's augmentation options.
type AugmentConfig struct {
	RotationRange    float64 `json:"rotation_range"`
	WidthShiftRange  float64 `json:"width_shift_range"`
	HeightShiftRange float64 `json:"height_shift_range"`
	ShearRange       float64 `json:"shear_range"`
	ZoomRange        float64 `json:"zoom_range"`
	HorizontalFlip   bool    `json:"horizontal_flip"`
	FillMode         string  `json:"fill_mode"`
}

// OutputConfig controls where artifacts land.
type OutputConfig struct {
	WorkDir        string `json:"work_dir"`
	CheckpointPath string `json:"checkpoint_path"`
	OnnxPath       string `json:"onnx_path,omitempty"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			AnnotationsPath: "data/annotations.csv",
			ImagesDir:       "data/images",
			TrainFraction:   0.8,
			Seed:            42,
			CropQuality:     95,
			Workers:         4,
		},
		Training: TrainingConfig{
			Epochs:        30,
			BatchSize:     32,
			ImageSize:     224,
			LearningRate:  1e-4,
			EarlyStopping: true,
			Patience:      10,
			CacheSize:     2048,
		},
		Augment: AugmentConfig{
			RotationRange:    15,
			WidthShiftRange:  0.1,
			HeightShiftRange: 0.1,
			ShearRange:       10,
			ZoomRange:        0.1,
			HorizontalFlip:   true,
			FillMode:         "nearest",
		},
		Output: OutputConfig{
			WorkDir:        "work",
			CheckpointPath: "work/model.json",
		},
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &config, nil
}

// SaveToFile saves configuration to a JSON file.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Data.AnnotationsPath == "" {
		return fmt.Errorf("data.annotations_path cannot be empty")
	}
	if c.Data.ImagesDir == "" {
		return fmt.Errorf("data.images_dir cannot be empty")
	}
	if c.Data.TrainFraction <= 0 || c.Data.TrainFraction >= 1 {
		return fmt.Errorf("data.train_fraction must be between 0 and 1 exclusive")
	}
	if c.Data.CropQuality < 1 || c.Data.CropQuality > 100 {
		return fmt.Errorf("data.crop_quality must be between 1 and 100")
	}
	if c.Training.Epochs < 1 {
		return fmt.Errorf("training.epochs must be positive")
	}
	if c.Training.BatchSize < 1 {
		return fmt.Errorf("training.batch_size must be positive")
	}
	if c.Training.ImageSize < 32 {
		return fmt.Errorf("training.image_size must be at least 32")
	}
	if c.Training.LearningRate <= 0 {
		return fmt.Errorf("training.learning_rate must be positive")
	}
	if c.Training.EarlyStopping && c.Training.Patience < 1 {
		return fmt.Errorf("training.patience must be positive when early stopping is enabled")
	}
	if c.Training.BackboneOnnxPath != "" && len(c.Training.BackboneFeatureShape) == 0 {
		return fmt.Errorf("training.backbone_feature_shape is required with training.backbone_onnx_path")
	}
	for _, dim := range c.Training.BackboneFeatureShape {
		if dim < 1 {
			return fmt.Errorf("training.backbone_feature_shape dimensions must be positive")
		}
	}
	switch c.Augment.FillMode {
	case "", "nearest", "reflect", "wrap", "constant":
	default:
		return fmt.Errorf("augment.fill_mode %q is not one of nearest, reflect, wrap, constant", c.Augment.FillMode)
	}
	if c.Output.WorkDir == "" {
		return fmt.Errorf("output.work_dir cannot be empty")
	}
	return nil
}
