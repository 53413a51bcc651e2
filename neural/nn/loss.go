package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	. "github.com/golangast/nlutrain/neural/tensor"
)

// IgnoreNone disables the ignore index of a CrossEntropy criterion.
const IgnoreNone = -1

// Reduction selects how per-target losses are combined.
type Reduction int

const (
	// ReductionMean averages over non-ignored targets.
	ReductionMean Reduction = iota
	// ReductionSum adds up non-ignored targets.
	ReductionSum
)

// CrossEntropy is a cross-entropy criterion over [N, C] logits. Targets equal
// to IgnoreIndex contribute neither to the loss value nor to the gradient.
type CrossEntropy struct {
	IgnoreIndex int
	Reduction   Reduction
}

// Forward calculates the loss for logits against one target per row.
func (c CrossEntropy) Forward(logits *Tensor, targets []int) (*Tensor, error) {
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("CrossEntropy expects 2D logits, got shape %v", logits.Shape)
	}
	rows, numClasses := logits.Shape[0], logits.Shape[1]
	if len(targets) != rows {
		return nil, fmt.Errorf("mismatched target and logit dimensions: targets %d, logits rows %d", len(targets), rows)
	}

	probs := Softmax(logits)
	loss := 0.0
	count := 0
	for i, target := range targets {
		if target == c.IgnoreIndex {
			continue
		}
		if target < 0 || target >= numClasses {
			return nil, fmt.Errorf("target %d out of range for %d classes", target, numClasses)
		}
		row := logits.Row(i)
		// log-sum-exp for numerical stability
		maxLogit := floats.Max(row)
		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - maxLogit)
		}
		loss -= row[target] - maxLogit - math.Log(sumExp)
		count++
	}

	scale := 1.0
	if c.Reduction == ReductionMean {
		if count == 0 {
			scale = 0
		} else {
			scale = 1 / float64(count)
		}
	}

	result := NewTensor([]int{1}, []float64{loss * scale}, logits.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &crossEntropyOperation{
			logits:  logits,
			probs:   probs,
			targets: targets,
			ignore:  c.IgnoreIndex,
			scale:   scale,
		}
	}
	return result, nil
}

// crossEntropyOperation represents the cross-entropy loss for backward pass.
type crossEntropyOperation struct {
	logits  *Tensor
	probs   *Tensor
	targets []int
	ignore  int
	scale   float64
}

func (op *crossEntropyOperation) Inputs() []*Tensor {
	return []*Tensor{op.logits}
}

func (op *crossEntropyOperation) Backward(grad *Tensor) error {
	if op.logits.Grad == nil {
		op.logits.Grad = NewTensor(op.logits.Shape, nil, false)
	}
	numClasses := op.logits.Shape[1]
	upstream := grad.Data[0] * op.scale
	for i, target := range op.targets {
		if target == op.ignore {
			continue
		}
		p := op.probs.Row(i)
		g := op.logits.Grad.Data[i*numClasses : (i+1)*numClasses]
		for j := range g {
			d := p[j]
			if j == target {
				d -= 1
			}
			g[j] += d * upstream
		}
	}
	return nil
}

// TimeMajor flattens rectangular [batch][steps] ids into the row order of
// time-major logits: row t*batch+b holds sequence b at step t.
func TimeMajor(seqs [][]int) []int {
	if len(seqs) == 0 {
		return nil
	}
	batch, steps := len(seqs), len(seqs[0])
	out := make([]int, batch*steps)
	for b, seq := range seqs {
		for t, id := range seq {
			out[t*batch+b] = id
		}
	}
	return out
}
