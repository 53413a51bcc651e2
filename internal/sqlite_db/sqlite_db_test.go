package sqlite_db

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestRunHistory(t *testing.T) {
	db, err := InitDB(filepath.Join(t.TempDir(), "runs", "history.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	defer db.Close()

	id, err := StartRun(db, "lm", "cell: lstm\n")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	epochs := []Epoch{
		{Epoch: 1, TrainLoss: 6.1, DevLoss: 5.9, Metric: 310.5, Improved: true},
		{Epoch: 2, TrainLoss: 5.4, DevLoss: 5.6, Metric: 280.2, Improved: true},
		{Epoch: 3, TrainLoss: 5.0, DevLoss: 5.7, Metric: 290.0, Improved: false},
	}
	for _, e := range epochs {
		if err := SaveEpoch(db, id, e); err != nil {
			t.Fatalf("SaveEpoch: %v", err)
		}
	}
	if err := SaveEpoch(db, id, epochs[0]); err == nil {
		t.Errorf("expected a duplicate epoch to be rejected")
	}
	if err := FinishRun(db, id, 275.0); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := GetEpochs(db, id)
	if err != nil {
		t.Fatalf("GetEpochs: %v", err)
	}
	if !reflect.DeepEqual(got, epochs) {
		t.Errorf("GetEpochs() = %+v, expected %+v", got, epochs)
	}

	runs, err := GetRuns(db, "lm")
	if err != nil {
		t.Fatalf("GetRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Config != "cell: lstm\n" || !runs[0].TestMetric.Valid || runs[0].TestMetric.Float64 != 275.0 {
		t.Errorf("GetRuns() = %+v", runs)
	}
	if others, err := GetRuns(db, "joint"); err != nil || len(others) != 0 {
		t.Errorf("GetRuns(joint) = %v, %v", others, err)
	}
}
