// Package config loads and validates the run configuration for an
// ensemble training/evaluation experiment. The configuration is read once
// from a JSON file and is read-only for the rest of the pipeline.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// RunConfig holds every recognized experiment option.
type RunConfig struct {
	// Dim is [height, width, featureDim]: the spatial size features are
	// extracted at and the per-pixel feature vector length.
	Dim []int `json:"dim"`

	NumberClass int `json:"number_class"`
	IgnoreLabel int `json:"ignore_label"`

	// ShareNoise makes every extraction in a run use one noise tensor
	// generated from Seed, so features are comparable across images.
	ShareNoise bool  `json:"share_noise"`
	Seed       int64 `json:"seed"`

	BatchSize int `json:"batch_size"`
	MaxEpochs int `json:"max_epochs"`
	LogEvery  int `json:"log_every"`

	// ModelNum is the ensemble size.
	ModelNum int `json:"model_num"`

	TrainingPath   string `json:"training_path"`
	TrainingNumber int    `json:"training_number"`
	TestingPath    string `json:"testing_path"`
	TestingNumber  int    `json:"testing_number"`

	ExpDir string `json:"exp_dir"`

	// SavePredictions renders each test prediction as a color PNG under
	// the experiment directory.
	SavePredictions bool `json:"save_predictions"`

	// Workers bounds the compute context; 0 means one per CPU.
	Workers int `json:"workers"`
}

// Load reads a JSON run configuration, applies defaults and validates it.
func Load(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := &RunConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *RunConfig) ApplyDefaults() {
	if c.IgnoreLabel == 0 {
		c.IgnoreLabel = 255
	}
	if c.BatchSize == 0 {
		c.BatchSize = 64
	}
	if c.MaxEpochs == 0 {
		c.MaxEpochs = 100
	}
	if c.LogEvery == 0 {
		c.LogEvery = 1000
	}
	if c.ModelNum == 0 {
		c.ModelNum = 10
	}
}

// Validate checks required fields before any training starts.
func (c *RunConfig) Validate() error {
	if len(c.Dim) != 3 {
		return fmt.Errorf("dim must be [height, width, featureDim], got %v", c.Dim)
	}
	for i, d := range c.Dim {
		if d <= 0 {
			return fmt.Errorf("dim[%d] must be positive, got %d", i, d)
		}
	}
	if c.NumberClass < 2 {
		return fmt.Errorf("number_class must be at least 2, got %d", c.NumberClass)
	}
	if c.IgnoreLabel >= 0 && c.IgnoreLabel < c.NumberClass {
		return fmt.Errorf("ignore_label %d collides with class indices [0, %d)", c.IgnoreLabel, c.NumberClass)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxEpochs <= 0 {
		return fmt.Errorf("max_epochs must be positive, got %d", c.MaxEpochs)
	}
	if c.ModelNum <= 0 {
		return fmt.Errorf("model_num must be positive, got %d", c.ModelNum)
	}
	if c.TrainingPath == "" {
		return fmt.Errorf("training_path is required")
	}
	if c.TrainingNumber <= 0 {
		return fmt.Errorf("training_number must be positive, got %d", c.TrainingNumber)
	}
	if c.TestingPath == "" {
		return fmt.Errorf("testing_path is required")
	}
	if c.TestingNumber <= 0 {
		return fmt.Errorf("testing_number must be positive, got %d", c.TestingNumber)
	}
	if c.ExpDir == "" {
		return fmt.Errorf("exp_dir is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// ImageSize returns the configured spatial resolution (height).
func (c *RunConfig) ImageSize() int {
	return c.Dim[0]
}

// FeatureDim returns the per-pixel feature vector length.
func (c *RunConfig) FeatureDim() int {
	return c.Dim[2]
}
