package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := DefaultLM().Validate(); err != nil {
		t.Errorf("DefaultLM: %v", err)
	}
	if err := DefaultJoint().Validate(); err != nil {
		t.Errorf("DefaultJoint: %v", err)
	}
}

func TestLoadLMOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lm.yaml")
	content := "cell: lstm\nhid-size: 64\noutput:\n  plot: \"\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadLM(path)
	if err != nil {
		t.Fatalf("LoadLM: %v", err)
	}
	if cfg.Cell != "lstm" || cfg.HiddenSize != 64 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.EmbeddingSize != 300 || cfg.LearningRate != 0.005 || cfg.Patience != 3 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Output.Plot != "" || cfg.Output.Checkpoint == "" {
		t.Errorf("output = %+v", cfg.Output)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*JointConfig)
	}{
		{"zero hidden size", func(c *JointConfig) { c.HiddenSize = 0 }},
		{"negative lr", func(c *JointConfig) { c.LearningRate = -1 }},
		{"dev fraction of one", func(c *JointConfig) { c.DevFraction = 1 }},
		{"dropout of one", func(c *JointConfig) { c.Dropout = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultJoint()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("expected a validation error")
			}
		})
	}

	lm := DefaultLM()
	lm.Cell = "gru"
	if err := lm.Validate(); err == nil {
		t.Errorf("expected an error for an unknown cell")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadJoint(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("runs: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadJoint(bad); err == nil {
		t.Errorf("expected a parse error")
	}
}
