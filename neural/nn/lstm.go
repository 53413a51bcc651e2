package nn

import (
	"fmt"

	"golang.org/x/exp/rand"

	. "github.com/golangast/nlutrain/neural/tensor"
)

// State is the recurrent state carried between time steps. C is nil for
// cells without a memory cell.
type State struct {
	H *Tensor
	C *Tensor
}

// Cell is a single recurrent step.
type Cell interface {
	Module
	Step(x *Tensor, prev State) (State, error)
	Size() int
	setTraining(bool)
	clone() Cell
}

// NewCell creates a cell by kind: "rnn" (Elman, tanh) or "lstm".
func NewCell(kind string, inputSize, hiddenSize int, rng *rand.Rand) (Cell, error) {
	switch kind {
	case "rnn":
		return NewRNNCell(inputSize, hiddenSize, rng)
	case "lstm":
		return NewLSTMCell(inputSize, hiddenSize, rng)
	}
	return nil, fmt.Errorf("unknown recurrent cell %q", kind)
}

// RNNCell computes h' = tanh(x Wih + h Whh + b).
type RNNCell struct {
	mode
	InputSize  int
	HiddenSize int
	Wih, Whh   *Tensor
	B          *Tensor
}

// NewRNNCell creates a new RNNCell.
func NewRNNCell(inputSize, hiddenSize int, rng *rand.Rand) (*RNNCell, error) {
	if inputSize <= 0 || hiddenSize <= 0 {
		return nil, fmt.Errorf("invalid RNNCell sizes %d, %d", inputSize, hiddenSize)
	}
	c := &RNNCell{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wih:        NewTensor([]int{inputSize, hiddenSize}, nil, true),
		Whh:        NewTensor([]int{hiddenSize, hiddenSize}, nil, true),
		B:          NewTensor([]int{hiddenSize}, nil, true),
	}
	xavierBlocks(c.Wih.Data, inputSize, hiddenSize, 1, rng)
	orthogonalBlocks(c.Whh.Data, hiddenSize, 1, rng)
	return c, nil
}

// Parameters returns all learnable parameters of the RNNCell.
func (c *RNNCell) Parameters() []*Tensor {
	return []*Tensor{c.Wih, c.Whh, c.B}
}

// Size returns the hidden size.
func (c *RNNCell) Size() int { return c.HiddenSize }

// Step performs the forward pass of the RNNCell for one time step.
func (c *RNNCell) Step(x *Tensor, prev State) (State, error) {
	xh, err := x.MatMul(c.param(c.Wih))
	if err != nil {
		return State{}, err
	}
	hh, err := prev.H.MatMul(c.param(c.Whh))
	if err != nil {
		return State{}, err
	}
	sum, err := xh.Add(hh)
	if err != nil {
		return State{}, err
	}
	sum, err = sum.AddWithBroadcast(c.param(c.B))
	if err != nil {
		return State{}, err
	}
	h, err := sum.Tanh()
	if err != nil {
		return State{}, err
	}
	return State{H: h}, nil
}

func (c *RNNCell) clone() Cell {
	return &RNNCell{
		InputSize:  c.InputSize,
		HiddenSize: c.HiddenSize,
		Wih:        c.Wih.Clone(),
		Whh:        c.Whh.Clone(),
		B:          c.B.Clone(),
	}
}

// LSTMCell represents a single LSTM cell. The four gates are packed along
// the columns in the order input, forget, candidate, output.
type LSTMCell struct {
	mode
	InputSize  int
	HiddenSize int
	Wih, Whh   *Tensor
	B          *Tensor
}

// NewLSTMCell creates a new LSTMCell.
func NewLSTMCell(inputSize, hiddenSize int, rng *rand.Rand) (*LSTMCell, error) {
	if inputSize <= 0 || hiddenSize <= 0 {
		return nil, fmt.Errorf("invalid LSTMCell sizes %d, %d", inputSize, hiddenSize)
	}
	c := &LSTMCell{
		InputSize:  inputSize,
		HiddenSize: hiddenSize,
		Wih:        NewTensor([]int{inputSize, 4 * hiddenSize}, nil, true),
		Whh:        NewTensor([]int{hiddenSize, 4 * hiddenSize}, nil, true),
		B:          NewTensor([]int{4 * hiddenSize}, nil, true),
	}
	xavierBlocks(c.Wih.Data, inputSize, hiddenSize, 4, rng)
	orthogonalBlocks(c.Whh.Data, hiddenSize, 4, rng)
	return c, nil
}

// Parameters returns all learnable parameters of the LSTMCell.
func (c *LSTMCell) Parameters() []*Tensor {
	return []*Tensor{c.Wih, c.Whh, c.B}
}

// Size returns the hidden size.
func (c *LSTMCell) Size() int { return c.HiddenSize }

// Step performs the forward pass of the LSTMCell for one time step.
func (c *LSTMCell) Step(x *Tensor, prev State) (State, error) {
	xh, err := x.MatMul(c.param(c.Wih))
	if err != nil {
		return State{}, err
	}
	hh, err := prev.H.MatMul(c.param(c.Whh))
	if err != nil {
		return State{}, err
	}
	gates, err := xh.Add(hh)
	if err != nil {
		return State{}, err
	}
	gates, err = gates.AddWithBroadcast(c.param(c.B))
	if err != nil {
		return State{}, err
	}
	h := c.HiddenSize
	parts, err := Split(gates, 1, []int{h, h, h, h})
	if err != nil {
		return State{}, err
	}

	it, err := parts[0].Sigmoid()
	if err != nil {
		return State{}, err
	}
	ft, err := parts[1].Sigmoid()
	if err != nil {
		return State{}, err
	}
	cct, err := parts[2].Tanh()
	if err != nil {
		return State{}, err
	}
	ot, err := parts[3].Sigmoid()
	if err != nil {
		return State{}, err
	}

	// New cell state
	ct, err := ft.Mul(prev.C)
	if err != nil {
		return State{}, err
	}
	itCct, err := it.Mul(cct)
	if err != nil {
		return State{}, err
	}
	ct, err = ct.Add(itCct)
	if err != nil {
		return State{}, err
	}

	// New hidden state
	ctTanh, err := ct.Tanh()
	if err != nil {
		return State{}, fmt.Errorf("LSTMCell.Step: Tanh operation failed: %w", err)
	}
	ht, err := ot.Mul(ctTanh)
	if err != nil {
		return State{}, fmt.Errorf("LSTMCell.Step: Mul operation failed for hidden state: %w", err)
	}
	return State{H: ht, C: ct}, nil
}

func (c *LSTMCell) clone() Cell {
	return &LSTMCell{
		InputSize:  c.InputSize,
		HiddenSize: c.HiddenSize,
		Wih:        c.Wih.Clone(),
		Whh:        c.Whh.Clone(),
		B:          c.B.Clone(),
	}
}

// Recurrent unrolls a Cell over a time-major sequence.
type Recurrent struct {
	Cell    Cell
	Reverse bool
}

// zeroState returns the initial state for a batch.
func (r *Recurrent) zeroState(batch int) State {
	st := State{H: NewTensor([]int{batch, r.Cell.Size()}, nil, false)}
	if _, ok := r.Cell.(*LSTMCell); ok {
		st.C = NewTensor([]int{batch, r.Cell.Size()}, nil, false)
	}
	return st
}

// Forward runs the cell over inputs, one [batch, input] tensor per step.
// masks, when non-nil, holds one validity value per row and step; invalid
// steps carry the previous state forward. It returns the hidden output of
// every step in input order and the final state, which for a masked forward
// pass is the state at each row's last valid position.
func (r *Recurrent) Forward(inputs []*Tensor, masks [][]float64) ([]*Tensor, State, error) {
	if len(inputs) == 0 {
		return nil, State{}, fmt.Errorf("Recurrent.Forward received no time steps")
	}
	st := r.zeroState(inputs[0].Shape[0])
	outputs := make([]*Tensor, len(inputs))
	for k := range inputs {
		t := k
		if r.Reverse {
			t = len(inputs) - 1 - k
		}
		next, err := r.Cell.Step(inputs[t], st)
		if err != nil {
			return nil, State{}, fmt.Errorf("step %d: %w", t, err)
		}
		if masks != nil {
			next.H, err = next.H.MaskedUpdate(st.H, masks[t])
			if err != nil {
				return nil, State{}, err
			}
			if next.C != nil {
				next.C, err = next.C.MaskedUpdate(st.C, masks[t])
				if err != nil {
					return nil, State{}, err
				}
			}
		}
		st = next
		outputs[t] = st.H
	}
	return outputs, st, nil
}
