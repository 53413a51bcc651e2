package nn

import (
	"encoding/gob"
	"fmt"

	"golang.org/x/exp/rand"

	. "github.com/golangast/nlutrain/neural/tensor"
)

func init() {
	gob.Register(&Linear{})
	gob.Register(&RNNCell{})
	gob.Register(&LSTMCell{})
}

// Module is anything that owns learnable parameters.
type Module interface {
	Parameters() []*Tensor
}

// mode carries the train/eval switch shared by layers. In eval mode layers
// read their parameters through detached views, so nothing is recorded for
// backpropagation and dropout is disabled.
type mode struct {
	training bool
}

func (m *mode) setTraining(training bool) { m.training = training }

func (m *mode) param(p *Tensor) *Tensor {
	if m.training {
		return p
	}
	return p.Detach()
}

// Linear represents a linear layer (fully connected layer).
type Linear struct {
	mode
	Weights *Tensor
	Biases  *Tensor
}

// NewLinear creates a Linear layer. Weights are drawn uniformly from
// [-0.01, 0.01] and biases are filled with 0.01.
func NewLinear(inputDim, outputDim int, rng *rand.Rand) (*Linear, error) {
	if inputDim <= 0 || outputDim <= 0 {
		return nil, fmt.Errorf("invalid Linear dimensions %dx%d", inputDim, outputDim)
	}
	weights := NewTensor([]int{inputDim, outputDim}, nil, true)
	uniform(weights.Data, -0.01, 0.01, rng)

	biases := NewTensor([]int{outputDim}, nil, true)
	for i := range biases.Data {
		biases.Data[i] = 0.01
	}
	return &Linear{Weights: weights, Biases: biases}, nil
}

// Parameters returns all learnable parameters of the layer.
func (l *Linear) Parameters() []*Tensor {
	return []*Tensor{l.Weights, l.Biases}
}

// Forward maps [batch_size, input_dim] to [batch_size, output_dim].
func (l *Linear) Forward(input *Tensor) (*Tensor, error) {
	if input == nil {
		return nil, fmt.Errorf("Linear.Forward received a nil input tensor")
	}
	output, err := input.MatMul(l.param(l.Weights))
	if err != nil {
		return nil, fmt.Errorf("linear layer matrix multiplication failed: %w", err)
	}
	output, err = output.AddWithBroadcast(l.param(l.Biases))
	if err != nil {
		return nil, fmt.Errorf("linear layer bias addition failed: %w", err)
	}
	return output, nil
}

// Clone returns an independent copy of the layer.
func (l *Linear) Clone() *Linear {
	return &Linear{Weights: l.Weights.Clone(), Biases: l.Biases.Clone()}
}

// dropout applies inverted dropout in training mode only.
func (m *mode) dropout(x *Tensor, p float64, rng *rand.Rand) (*Tensor, error) {
	if !m.training {
		return x, nil
	}
	return x.Dropout(p, rng)
}
