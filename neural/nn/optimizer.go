package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	. "github.com/golangast/nlutrain/neural/tensor"
)

// Optimizer interface defines the contract for optimizers.
type Optimizer interface {
	Step()
	ZeroGrad()
}

// NewOptimizer creates an optimizer by name: "sgd", "adam" or "adamw".
func NewOptimizer(kind string, parameters []*Tensor, learningRate, weightDecay float64) (Optimizer, error) {
	if learningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %f", learningRate)
	}
	switch kind {
	case "sgd":
		return NewSGD(parameters, learningRate), nil
	case "adam":
		return NewAdam(parameters, learningRate), nil
	case "adamw":
		return NewAdamW(parameters, learningRate, weightDecay), nil
	}
	return nil, fmt.Errorf("unknown optimizer %q", kind)
}

func zeroGrads(parameters []*Tensor) {
	for _, p := range parameters {
		p.ZeroGrad()
	}
}

// SGD is plain stochastic gradient descent.
type SGD struct {
	parameters   []*Tensor
	learningRate float64
}

// NewSGD creates a new SGD optimizer.
func NewSGD(parameters []*Tensor, learningRate float64) *SGD {
	return &SGD{parameters: parameters, learningRate: learningRate}
}

// Step performs a single optimization step.
func (o *SGD) Step() {
	for _, p := range o.parameters {
		if p.Grad != nil {
			floats.AddScaled(p.Data, -o.learningRate, p.Grad.Data)
		}
	}
}

// ZeroGrad resets the gradients of all parameters.
func (o *SGD) ZeroGrad() { zeroGrads(o.parameters) }

// Adam represents the Adam optimizer. A non-zero weightDecay makes it AdamW:
// the decay is applied to the weights directly instead of through the gradient.
type Adam struct {
	parameters   []*Tensor
	learningRate float64
	beta1        float64
	beta2        float64
	epsilon      float64
	weightDecay  float64
	t            int
	m            map[*Tensor][]float64 // 1st moment vector
	v            map[*Tensor][]float64 // 2nd moment vector
}

// NewAdam creates a new Adam optimizer.
func NewAdam(parameters []*Tensor, learningRate float64) *Adam {
	return &Adam{
		parameters:   parameters,
		learningRate: learningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-8,
		m:            make(map[*Tensor][]float64),
		v:            make(map[*Tensor][]float64),
	}
}

// NewAdamW creates an Adam optimizer with decoupled weight decay.
func NewAdamW(parameters []*Tensor, learningRate, weightDecay float64) *Adam {
	o := NewAdam(parameters, learningRate)
	o.weightDecay = weightDecay
	return o
}

// Step performs a single optimization step.
func (o *Adam) Step() {
	o.t++
	bias1 := 1 - math.Pow(o.beta1, float64(o.t))
	bias2 := 1 - math.Pow(o.beta2, float64(o.t))
	for _, p := range o.parameters {
		if p.Grad == nil {
			continue
		}
		m, ok := o.m[p]
		if !ok {
			m = make([]float64, len(p.Data))
			o.m[p] = m
			o.v[p] = make([]float64, len(p.Data))
		}
		v := o.v[p]

		if o.weightDecay != 0 {
			floats.Scale(1-o.learningRate*o.weightDecay, p.Data)
		}
		for i, g := range p.Grad.Data {
			m[i] = o.beta1*m[i] + (1-o.beta1)*g
			v[i] = o.beta2*v[i] + (1-o.beta2)*g*g
			mHat := m[i] / bias1
			vHat := v[i] / bias2
			p.Data[i] -= o.learningRate * mHat / (math.Sqrt(vHat) + o.epsilon)
		}
	}
}

// ZeroGrad resets the gradients of all parameters.
func (o *Adam) ZeroGrad() { zeroGrads(o.parameters) }

// ClipGradNorm rescales the gradients of parameters in place so that their
// global L2 norm does not exceed maxNorm. It returns the norm before clipping.
func ClipGradNorm(parameters []*Tensor, maxNorm float64) float64 {
	total := 0.0
	for _, p := range parameters {
		if p.Grad == nil {
			continue
		}
		n := floats.Norm(p.Grad.Data, 2)
		total += n * n
	}
	total = math.Sqrt(total)

	if coef := maxNorm / (total + 1e-6); coef < 1 {
		for _, p := range parameters {
			if p.Grad != nil {
				floats.Scale(coef, p.Grad.Data)
			}
		}
	}
	return total
}
