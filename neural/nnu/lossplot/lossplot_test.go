package lossplot

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "loss.png")
	err := Save(path, "LM", []int{1, 2, 3},
		Curve{Name: "train", Values: []float64{5.1, 4.7, 4.5}},
		Curve{Name: "dev", Values: []float64{5.3, 5.0, 4.9}},
	)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("plot not written: %v", err)
	}
	if info.Size() == 0 {
		t.Errorf("plot file is empty")
	}
}

func TestSaveRejectsMismatchedCurves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.png")
	if err := Save(path, "LM", []int{1, 2}, Curve{Name: "train", Values: []float64{1}}); err == nil {
		t.Errorf("expected an error for a short curve")
	}
	if err := Save(path, "LM", nil); err == nil {
		t.Errorf("expected an error for no epochs")
	}
}
