// Package config holds the hyperparameters of the two experiments and reads
// them from YAML files.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Output locates the artifacts a run writes. Empty paths disable the artifact.
type Output struct {
	Checkpoint string `yaml:"checkpoint,omitempty"`
	History    string `yaml:"history,omitempty"`
	Plot       string `yaml:"plot,omitempty"`
}

// LMConfig configures the language-model experiment.
type LMConfig struct {
	TrainFile string `yaml:"train-file"`
	DevFile   string `yaml:"dev-file"`
	TestFile  string `yaml:"test-file"`

	Cell             string  `yaml:"cell"`
	EmbeddingSize    int     `yaml:"emb-size"`
	HiddenSize       int     `yaml:"hid-size"`
	EmbeddingDropout float64 `yaml:"emb-dropout"`
	OutputDropout    float64 `yaml:"out-dropout"`

	Optimizer    string  `yaml:"optimizer"`
	LearningRate float64 `yaml:"lr"`
	WeightDecay  float64 `yaml:"weight-decay"`
	Clip         float64 `yaml:"clip"`
	Epochs       int     `yaml:"epochs"`
	Patience     int     `yaml:"patience"`
	TrainBatch   int     `yaml:"train-batch"`
	EvalBatch    int     `yaml:"eval-batch"`
	Seed         uint64  `yaml:"seed"`

	Output Output `yaml:"output"`
}

// JointConfig configures the joint intent and slot experiment.
type JointConfig struct {
	TrainFile   string  `yaml:"train-file"`
	TestFile    string  `yaml:"test-file"`
	DevFraction float64 `yaml:"dev-fraction"`
	Cutoff      int     `yaml:"cutoff"`

	EmbeddingSize int     `yaml:"emb-size"`
	HiddenSize    int     `yaml:"hid-size"`
	Bidirectional bool    `yaml:"bidirectional"`
	Dropout       float64 `yaml:"dropout"`

	Optimizer    string  `yaml:"optimizer"`
	LearningRate float64 `yaml:"lr"`
	WeightDecay  float64 `yaml:"weight-decay"`
	Clip         float64 `yaml:"clip"`
	Epochs       int     `yaml:"epochs"`
	EvalEvery    int     `yaml:"eval-every"`
	Patience     int     `yaml:"patience"`
	Runs         int     `yaml:"runs"`
	TrainBatch   int     `yaml:"train-batch"`
	EvalBatch    int     `yaml:"eval-batch"`
	Seed         uint64  `yaml:"seed"`

	Output Output `yaml:"output"`
}

// DefaultLM returns the language-model settings used when no file overrides them.
func DefaultLM() LMConfig {
	return LMConfig{
		TrainFile:     "dataset/PennTreeBank/ptb.train.txt",
		DevFile:       "dataset/PennTreeBank/ptb.valid.txt",
		TestFile:      "dataset/PennTreeBank/ptb.test.txt",
		Cell:          "rnn",
		EmbeddingSize: 300,
		HiddenSize:    200,
		Optimizer:     "adamw",
		LearningRate:  0.005,
		WeightDecay:   0.01,
		Clip:          5,
		Epochs:        14,
		Patience:      3,
		TrainBatch:    256,
		EvalBatch:     1024,
		Seed:          42,
		Output: Output{
			Checkpoint: "models/lm.gob",
			History:    "runs/history.db",
			Plot:       "runs/lm_loss.png",
		},
	}
}

// DefaultJoint returns the joint-model settings used when no file overrides them.
func DefaultJoint() JointConfig {
	return JointConfig{
		TrainFile:     "dataset/ATIS/train.json",
		TestFile:      "dataset/ATIS/test.json",
		DevFraction:   0.1,
		EmbeddingSize: 300,
		HiddenSize:    200,
		Optimizer:     "adam",
		LearningRate:  0.0001,
		Clip:          5,
		Epochs:        200,
		EvalEvery:     5,
		Patience:      3,
		Runs:          5,
		TrainBatch:    128,
		EvalBatch:     64,
		Seed:          42,
		Output: Output{
			Checkpoint: "models/joint.gob",
			History:    "runs/history.db",
			Plot:       "runs/joint_loss.png",
		},
	}
}

func load(path string, into interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// LoadLM reads path over the defaults. An empty path returns the defaults.
func LoadLM(path string) (LMConfig, error) {
	cfg := DefaultLM()
	if path != "" {
		if err := load(path, &cfg); err != nil {
			return LMConfig{}, err
		}
	}
	return cfg, cfg.Validate()
}

// LoadJoint reads path over the defaults. An empty path returns the defaults.
func LoadJoint(path string) (JointConfig, error) {
	cfg := DefaultJoint()
	if path != "" {
		if err := load(path, &cfg); err != nil {
			return JointConfig{}, err
		}
	}
	return cfg, cfg.Validate()
}

func positive(values map[string]float64) error {
	for name, v := range values {
		if v <= 0 {
			return errors.Errorf("config: %s must be positive, got %v", name, v)
		}
	}
	return nil
}

func dropout(name string, p float64) error {
	if p < 0 || p >= 1 {
		return errors.Errorf("config: %s must be in [0, 1), got %v", name, p)
	}
	return nil
}

// Validate rejects settings no run can use.
func (c LMConfig) Validate() error {
	if err := positive(map[string]float64{
		"emb-size":    float64(c.EmbeddingSize),
		"hid-size":    float64(c.HiddenSize),
		"lr":          c.LearningRate,
		"clip":        c.Clip,
		"epochs":      float64(c.Epochs),
		"patience":    float64(c.Patience),
		"train-batch": float64(c.TrainBatch),
		"eval-batch":  float64(c.EvalBatch),
	}); err != nil {
		return err
	}
	if c.Cell != "rnn" && c.Cell != "lstm" {
		return errors.Errorf("config: cell must be rnn or lstm, got %q", c.Cell)
	}
	if err := dropout("emb-dropout", c.EmbeddingDropout); err != nil {
		return err
	}
	return dropout("out-dropout", c.OutputDropout)
}

// Validate rejects settings no run can use.
func (c JointConfig) Validate() error {
	if err := positive(map[string]float64{
		"emb-size":     float64(c.EmbeddingSize),
		"hid-size":     float64(c.HiddenSize),
		"lr":           c.LearningRate,
		"clip":         c.Clip,
		"epochs":       float64(c.Epochs),
		"eval-every":   float64(c.EvalEvery),
		"patience":     float64(c.Patience),
		"runs":         float64(c.Runs),
		"train-batch":  float64(c.TrainBatch),
		"eval-batch":   float64(c.EvalBatch),
		"dev-fraction": c.DevFraction,
	}); err != nil {
		return err
	}
	if c.DevFraction >= 1 {
		return errors.Errorf("config: dev-fraction must be below 1, got %v", c.DevFraction)
	}
	return dropout("dropout", c.Dropout)
}
