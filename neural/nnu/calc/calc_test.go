package calc

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestClassificationReport(t *testing.T) {
	ref := []string{"flight", "flight", "flight", "airfare", "airfare"}
	hyp := []string{"flight", "flight", "airfare", "airfare", "ground"}

	r, err := ClassificationReport(ref, hyp)
	if err != nil {
		t.Fatalf("ClassificationReport: %v", err)
	}
	if !reflect.DeepEqual(r.Labels, []string{"airfare", "flight", "ground"}) {
		t.Errorf("Labels = %v", r.Labels)
	}

	tests := []struct {
		label    string
		expected ClassScore
	}{
		{"flight", ClassScore{Precision: 1, Recall: 2.0 / 3, F1: 0.8, Support: 3}},
		{"airfare", ClassScore{Precision: 0.5, Recall: 0.5, F1: 0.5, Support: 2}},
		{"ground", ClassScore{Precision: 0, Recall: 0, F1: 0, Support: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got := r.Classes[tt.label]
			if !near(got.Precision, tt.expected.Precision) || !near(got.Recall, tt.expected.Recall) ||
				!near(got.F1, tt.expected.F1) || got.Support != tt.expected.Support {
				t.Errorf("%s = %+v, expected %+v", tt.label, got, tt.expected)
			}
		})
	}

	if !near(r.Accuracy, 0.6) {
		t.Errorf("Accuracy = %v, expected 0.6", r.Accuracy)
	}
	if !near(r.MacroAvg.F1, 1.3/3) {
		t.Errorf("MacroAvg.F1 = %v, expected %v", r.MacroAvg.F1, 1.3/3)
	}
	if !near(r.WeightedAvg.Recall, 0.6) {
		t.Errorf("WeightedAvg.Recall = %v, expected 0.6", r.WeightedAvg.Recall)
	}
	if !strings.Contains(r.String(), "weighted avg") {
		t.Errorf("String() is missing the averages:\n%s", r.String())
	}
}

func TestClassificationReportErrors(t *testing.T) {
	if _, err := ClassificationReport([]string{"a"}, nil); err == nil {
		t.Errorf("expected an error for mismatched lengths")
	}
	if _, err := ClassificationReport(nil, nil); err == nil {
		t.Errorf("expected an error for empty input")
	}
}
