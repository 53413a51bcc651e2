package train

import "math"

// EarlyStopper tracks the lowest validation metric seen so far and stops
// training after Patience consecutive observations that do not improve on it.
type EarlyStopper[M any] struct {
	Best      float64
	Patience  int
	Remaining int
	BestModel M
	snapshot  func(M) M
}

// NewEarlyStopper creates an EarlyStopper. snapshot must return a copy of
// the model that later training cannot modify.
func NewEarlyStopper[M any](patience int, snapshot func(M) M) *EarlyStopper[M] {
	return &EarlyStopper[M]{
		Best:      math.Inf(1),
		Patience:  patience,
		Remaining: patience,
		snapshot:  snapshot,
	}
}

// Observe records the metric of the current model. A strictly lower metric
// replaces the best snapshot and restores the patience; anything else uses
// one unit of it. stop is true once no patience is left.
func (s *EarlyStopper[M]) Observe(metric float64, model M) (improved, stop bool) {
	if metric < s.Best {
		s.Best = metric
		s.BestModel = s.snapshot(model)
		s.Remaining = s.Patience
		improved = true
	} else {
		s.Remaining--
	}
	return improved, s.Remaining <= 0
}
