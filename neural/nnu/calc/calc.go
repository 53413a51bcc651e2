// Package calc provides functions for calculating classification performance metrics.
package calc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// ClassScore holds the metrics of one class or one average.
type ClassScore struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is a per-class precision/recall/F1 report with accuracy and macro
// and support-weighted averages. Undefined ratios are reported as 0.
type Report struct {
	Labels      []string
	Classes     map[string]ClassScore
	Accuracy    float64
	MacroAvg    ClassScore
	WeightedAvg ClassScore
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ClassificationReport compares predicted labels hyp against reference labels
// ref. Labels are the sorted union of both sides.
func ClassificationReport(ref, hyp []string) (Report, error) {
	if len(ref) != len(hyp) {
		return Report{}, errors.Errorf("calc: %d reference labels but %d predictions", len(ref), len(hyp))
	}
	if len(ref) == 0 {
		return Report{}, errors.New("calc: no labels to report on")
	}

	truePos := map[string]int{}
	predicted := map[string]int{}
	support := map[string]int{}
	correct := 0
	for i := range ref {
		support[ref[i]]++
		predicted[hyp[i]]++
		if ref[i] == hyp[i] {
			truePos[ref[i]]++
			correct++
		}
	}

	labelSet := map[string]bool{}
	for l := range support {
		labelSet[l] = true
	}
	for l := range predicted {
		labelSet[l] = true
	}
	r := Report{Classes: make(map[string]ClassScore, len(labelSet))}
	for l := range labelSet {
		r.Labels = append(r.Labels, l)
	}
	sort.Strings(r.Labels)

	n := len(r.Labels)
	precision := make([]float64, n)
	recall := make([]float64, n)
	f1 := make([]float64, n)
	weights := make([]float64, n)
	for i, l := range r.Labels {
		p := ratio(truePos[l], predicted[l])
		rec := ratio(truePos[l], support[l])
		f := 0.0
		if p+rec > 0 {
			f = 2 * p * rec / (p + rec)
		}
		r.Classes[l] = ClassScore{Precision: p, Recall: rec, F1: f, Support: support[l]}
		precision[i], recall[i], f1[i], weights[i] = p, rec, f, float64(support[l])
	}

	r.Accuracy = ratio(correct, len(ref))
	r.MacroAvg = ClassScore{
		Precision: stat.Mean(precision, nil),
		Recall:    stat.Mean(recall, nil),
		F1:        stat.Mean(f1, nil),
		Support:   len(ref),
	}
	r.WeightedAvg = ClassScore{
		Precision: stat.Mean(precision, weights),
		Recall:    stat.Mean(recall, weights),
		F1:        stat.Mean(f1, weights),
		Support:   len(ref),
	}
	return r, nil
}

// String renders the report as a table.
func (r Report) String() string {
	width := len("weighted avg")
	for _, l := range r.Labels {
		if len(l) > width {
			width = len(l)
		}
	}
	var b strings.Builder
	row := func(name string, s ClassScore) {
		fmt.Fprintf(&b, "%*s %9.2f %9.2f %9.2f %9d\n", width, name, s.Precision, s.Recall, s.F1, s.Support)
	}
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for _, l := range r.Labels {
		row(l, r.Classes[l])
	}
	fmt.Fprintf(&b, "\n%*s %9s %9s %9.2f %9d\n", width, "accuracy", "", "", r.Accuracy, r.MacroAvg.Support)
	row("macro avg", r.MacroAvg)
	row("weighted avg", r.WeightedAvg)
	return b.String()
}
