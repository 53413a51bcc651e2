package tensor

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

// EmbeddingLookup gathers rows of weights [vocab_size, embedding_dim] for the
// given ids. Rows looked up for padID receive no gradient; pass -1 to disable.
func EmbeddingLookup(weights *Tensor, ids []int, padID int) (*Tensor, error) {
	if len(weights.Shape) != 2 {
		return nil, fmt.Errorf("EmbeddingLookup expects 2D weights, got %v", weights.Shape)
	}
	vocabSize, dim := weights.Shape[0], weights.Shape[1]
	resultData := make([]float64, len(ids)*dim)
	for i, id := range ids {
		if id < 0 || id >= vocabSize {
			return nil, fmt.Errorf("token id %d out of range for vocabulary of size %d", id, vocabSize)
		}
		copy(resultData[i*dim:(i+1)*dim], weights.Data[id*dim:(id+1)*dim])
	}

	result := NewTensor([]int{len(ids), dim}, resultData, weights.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &EmbeddingLookupOperation{InputIDs: append([]int(nil), ids...), Weights: weights, PadID: padID}
	}
	return result, nil
}

// EmbeddingLookupOperation represents an embedding lookup operation for autograd.
type EmbeddingLookupOperation struct {
	InputIDs []int
	Weights  *Tensor
	PadID    int
}

func (op *EmbeddingLookupOperation) Inputs() []*Tensor {
	return []*Tensor{op.Weights}
}

func (op *EmbeddingLookupOperation) Backward(grad *Tensor) error {
	dim := op.Weights.Shape[1]
	if op.Weights.Grad == nil {
		op.Weights.Grad = NewTensor(op.Weights.Shape, nil, false)
	}
	for i, id := range op.InputIDs {
		if id == op.PadID {
			continue
		}
		floats.Add(op.Weights.Grad.Data[id*dim:(id+1)*dim], grad.Data[i*dim:(i+1)*dim])
	}
	return nil
}

// Concat joins 2D tensors along axis 0 (rows) or axis 1 (columns).
func Concat(tensors []*Tensor, axis int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("Concat expects at least one tensor")
	}
	if axis != 0 && axis != 1 {
		return nil, fmt.Errorf("Concat supports axis 0 or 1, got %d", axis)
	}
	rows, cols := tensors[0].Shape[0], tensors[0].Shape[1]
	requiresGrad := false
	for i, t := range tensors {
		if len(t.Shape) != 2 {
			return nil, fmt.Errorf("Concat expects 2D tensors, got %v", t.Shape)
		}
		if i > 0 {
			if axis == 0 {
				if t.Shape[1] != cols {
					return nil, fmt.Errorf("mismatched shapes for Concat on axis 0: %v and %v", tensors[0].Shape, t.Shape)
				}
				rows += t.Shape[0]
			} else {
				if t.Shape[0] != rows {
					return nil, fmt.Errorf("mismatched shapes for Concat on axis 1: %v and %v", tensors[0].Shape, t.Shape)
				}
				cols += t.Shape[1]
			}
		}
		requiresGrad = requiresGrad || t.RequiresGrad
	}

	resultData := make([]float64, rows*cols)
	if axis == 0 {
		offset := 0
		for _, t := range tensors {
			copy(resultData[offset:], t.Data)
			offset += len(t.Data)
		}
	} else {
		colOffset := 0
		for _, t := range tensors {
			w := t.Shape[1]
			for r := 0; r < rows; r++ {
				copy(resultData[r*cols+colOffset:r*cols+colOffset+w], t.Data[r*w:(r+1)*w])
			}
			colOffset += w
		}
	}

	result := NewTensor([]int{rows, cols}, resultData, requiresGrad)
	if result.RequiresGrad {
		result.Creator = &ConcatOperation{Tensors: tensors, Axis: axis}
	}
	return result, nil
}

// ConcatOperation represents the concatenation for backward pass.
type ConcatOperation struct {
	Tensors []*Tensor
	Axis    int
}

func (op *ConcatOperation) Inputs() []*Tensor {
	return op.Tensors
}

func (op *ConcatOperation) Backward(grad *Tensor) error {
	if op.Axis == 0 {
		offset := 0
		for _, t := range op.Tensors {
			n := len(t.Data)
			if t.RequiresGrad {
				t.accumulate(grad.Data[offset : offset+n])
			}
			offset += n
		}
		return nil
	}
	rows, cols := grad.Shape[0], grad.Shape[1]
	colOffset := 0
	for _, t := range op.Tensors {
		w := t.Shape[1]
		if t.RequiresGrad {
			g := make([]float64, rows*w)
			for r := 0; r < rows; r++ {
				copy(g[r*w:(r+1)*w], grad.Data[r*cols+colOffset:r*cols+colOffset+w])
			}
			t.accumulate(g)
		}
		colOffset += w
	}
	return nil
}

// Split cuts a 2D tensor along axis 1 into pieces of the given widths.
func Split(t *Tensor, axis int, splitSizes []int) ([]*Tensor, error) {
	if len(t.Shape) != 2 || axis != 1 {
		return nil, fmt.Errorf("Split supports 2D tensors on axis 1, got shape %v axis %d", t.Shape, axis)
	}
	total := 0
	for _, s := range splitSizes {
		total += s
	}
	if total != t.Shape[1] {
		return nil, fmt.Errorf("split sizes %v do not add up to %d", splitSizes, t.Shape[1])
	}
	rows, cols := t.Shape[0], t.Shape[1]
	out := make([]*Tensor, len(splitSizes))
	offset := 0
	for i, w := range splitSizes {
		data := make([]float64, rows*w)
		for r := 0; r < rows; r++ {
			copy(data[r*w:(r+1)*w], t.Data[r*cols+offset:r*cols+offset+w])
		}
		out[i] = NewTensor([]int{rows, w}, data, t.RequiresGrad)
		if t.RequiresGrad {
			out[i].Creator = &SplitOperation{Input: t, Offset: offset, Width: w}
		}
		offset += w
	}
	return out, nil
}

// SplitOperation represents one piece of a split for backward pass.
type SplitOperation struct {
	Input  *Tensor
	Offset int
	Width  int
}

func (op *SplitOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *SplitOperation) Backward(grad *Tensor) error {
	rows, cols := op.Input.Shape[0], op.Input.Shape[1]
	g := make([]float64, len(op.Input.Data))
	for r := 0; r < rows; r++ {
		copy(g[r*cols+op.Offset:r*cols+op.Offset+op.Width], grad.Data[r*op.Width:(r+1)*op.Width])
	}
	op.Input.accumulate(g)
	return nil
}

// MaskedUpdate keeps row i of t where mask[i] is 1 and row i of prev where it
// is 0. Recurrent layers use it to freeze state over padded positions.
func (t *Tensor) MaskedUpdate(prev *Tensor, mask []float64) (*Tensor, error) {
	if !compareShapes(t.Shape, prev.Shape) || len(t.Shape) != 2 || len(mask) != t.Shape[0] {
		return nil, fmt.Errorf("incompatible shapes for MaskedUpdate: %v, %v and mask of %d", t.Shape, prev.Shape, len(mask))
	}
	cols := t.Shape[1]
	resultData := make([]float64, len(t.Data))
	for r, m := range mask {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			resultData[i] = m*t.Data[i] + (1-m)*prev.Data[i]
		}
	}

	result := NewTensor(t.Shape, resultData, t.RequiresGrad || prev.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &MaskedUpdateOperation{Next: t, Prev: prev, Mask: mask}
	}
	return result, nil
}

// MaskedUpdateOperation represents the masked state update for backward pass.
type MaskedUpdateOperation struct {
	Next *Tensor
	Prev *Tensor
	Mask []float64
}

func (op *MaskedUpdateOperation) Inputs() []*Tensor {
	return []*Tensor{op.Next, op.Prev}
}

func (op *MaskedUpdateOperation) Backward(grad *Tensor) error {
	cols := grad.Shape[1]
	gNext := make([]float64, len(grad.Data))
	gPrev := make([]float64, len(grad.Data))
	for r, m := range op.Mask {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			gNext[i] = m * grad.Data[i]
			gPrev[i] = (1 - m) * grad.Data[i]
		}
	}
	if op.Next.RequiresGrad {
		op.Next.accumulate(gNext)
	}
	if op.Prev.RequiresGrad {
		op.Prev.accumulate(gPrev)
	}
	return nil
}

// Dropout zeroes each element with probability p and rescales the survivors
// by 1/(1-p). A nil rng or p <= 0 returns t unchanged.
func (t *Tensor) Dropout(p float64, rng *rand.Rand) (*Tensor, error) {
	if rng == nil || p <= 0 {
		return t, nil
	}
	if p >= 1 {
		return nil, fmt.Errorf("dropout probability must be below 1, got %f", p)
	}
	scale := 1 / (1 - p)
	keep := make([]float64, len(t.Data))
	resultData := make([]float64, len(t.Data))
	for i, v := range t.Data {
		if rng.Float64() >= p {
			keep[i] = scale
			resultData[i] = v * scale
		}
	}

	result := NewTensor(t.Shape, resultData, t.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &DropoutOperation{Input: t, Keep: keep}
	}
	return result, nil
}

// DropoutOperation represents dropout for backward pass.
type DropoutOperation struct {
	Input *Tensor
	Keep  []float64
}

func (op *DropoutOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *DropoutOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	g := make([]float64, len(grad.Data))
	floats.MulTo(g, grad.Data, op.Keep)
	op.Input.accumulate(g)
	return nil
}

// Softmax applies the softmax function to the last dimension of the tensor.
func Softmax(tensor *Tensor) *Tensor {
	shape := tensor.Shape
	lastDim := shape[len(shape)-1]
	output := NewTensor(shape, make([]float64, len(tensor.Data)), false)

	for i := 0; i < len(tensor.Data); i += lastDim {
		row := tensor.Data[i : i+lastDim]
		maxVal := floats.Max(row)

		sumExp := 0.0
		for _, v := range row {
			sumExp += math.Exp(v - maxVal)
		}
		for j, v := range row {
			output.Data[i+j] = math.Exp(v-maxVal) / sumExp
		}
	}

	return output
}
