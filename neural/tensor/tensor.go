package tensor

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Operation is a recorded node of the computation graph.
type Operation interface {
	Inputs() []*Tensor
	Backward(grad *Tensor) error
}

// Tensor represents a multi-dimensional array of float64 values.
type Tensor struct {
	Data         []float64
	Shape        []int
	Grad         *Tensor   `gob:"-"`
	Creator      Operation `gob:"-"`
	RequiresGrad bool
}

// GobEncode implements the gob.GobEncoder interface.
func (t *Tensor) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(t.Data); err != nil {
		return nil, err
	}
	if err := enc.Encode(t.Shape); err != nil {
		return nil, err
	}
	if err := enc.Encode(t.RequiresGrad); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface.
func (t *Tensor) GobDecode(data []byte) error {
	dec := gob.NewDecoder(bytes.NewBuffer(data))

	if err := dec.Decode(&t.Data); err != nil {
		return err
	}
	if err := dec.Decode(&t.Shape); err != nil {
		return err
	}
	return dec.Decode(&t.RequiresGrad)
}

// NewTensor creates a new Tensor with the given shape and optional data.
func NewTensor(shape []int, data []float64, requiresGrad bool) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	if data == nil {
		data = make([]float64, size)
	}
	if len(data) != size {
		panic(fmt.Sprintf("tensor: data length %d does not match shape %v", len(data), shape))
	}
	return &Tensor{
		Data:         data,
		Shape:        shape,
		RequiresGrad: requiresGrad,
	}
}

// Scalar wraps a single value in a tensor of shape [1].
func Scalar(v float64) *Tensor {
	return NewTensor([]int{1}, []float64{v}, false)
}

// Clone creates a deep copy of the tensor. The clone is a new leaf: it shares
// neither gradient nor creator with t.
func (t *Tensor) Clone() *Tensor {
	newData := make([]float64, len(t.Data))
	copy(newData, t.Data)
	newShape := make([]int, len(t.Shape))
	copy(newShape, t.Shape)
	return &Tensor{
		Data:         newData,
		Shape:        newShape,
		RequiresGrad: t.RequiresGrad,
	}
}

// Detach returns a view that shares Data with t but is not tracked by autograd.
func (t *Tensor) Detach() *Tensor {
	return &Tensor{Data: t.Data, Shape: t.Shape}
}

// ZeroGrad resets the gradient of the tensor to zeros.
func (t *Tensor) ZeroGrad() {
	if !t.RequiresGrad {
		return
	}
	if t.Grad == nil {
		t.Grad = NewTensor(t.Shape, nil, false)
		return
	}
	for i := range t.Grad.Data {
		t.Grad.Data[i] = 0
	}
}

// Inputs returns no inputs: a bare tensor is a leaf of the graph.
func (t *Tensor) Inputs() []*Tensor {
	return []*Tensor{}
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() float64 {
	if len(t.Data) != 1 {
		panic(fmt.Sprintf("tensor: Item called on tensor of shape %v", t.Shape))
	}
	return t.Data[0]
}

// Rows returns the first dimension of a 2D tensor.
func (t *Tensor) Rows() int { return t.Shape[0] }

// Cols returns the second dimension of a 2D tensor.
func (t *Tensor) Cols() int { return t.Shape[1] }

// Row returns a view of row i of a 2D tensor.
func (t *Tensor) Row(i int) []float64 {
	c := t.Shape[1]
	return t.Data[i*c : (i+1)*c]
}

// ArgmaxRows returns the index of the largest value in each row of a 2D tensor.
func (t *Tensor) ArgmaxRows() []int {
	out := make([]int, t.Shape[0])
	for i := range out {
		out[i] = floats.MaxIdx(t.Row(i))
	}
	return out
}

// accumulate adds g into the gradient of t, allocating it when needed.
func (t *Tensor) accumulate(g []float64) {
	if t.Grad == nil {
		t.Grad = NewTensor(t.Shape, nil, false)
	}
	floats.Add(t.Grad.Data, g)
}

// compareShapes is a helper function to compare two shapes.
func compareShapes(s1, s2 []int) bool {
	if len(s1) != len(s2) {
		return false
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			return false
		}
	}
	return true
}

// Add performs element-wise addition of two tensors.
func (t *Tensor) Add(other *Tensor) (*Tensor, error) {
	if !compareShapes(t.Shape, other.Shape) {
		return nil, fmt.Errorf("mismatched shapes for Add operation: %v and %v", t.Shape, other.Shape)
	}
	resultData := make([]float64, len(t.Data))
	floats.AddTo(resultData, t.Data, other.Data)

	result := NewTensor(t.Shape, resultData, t.RequiresGrad || other.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &AddOperation{t, other}
	}
	return result, nil
}

// AddOperation represents the addition operation for backward pass.
type AddOperation struct {
	A *Tensor
	B *Tensor
}

func (op *AddOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.B}
}

func (op *AddOperation) Backward(grad *Tensor) error {
	if op.A.RequiresGrad {
		op.A.accumulate(grad.Data)
	}
	if op.B.RequiresGrad {
		op.B.accumulate(grad.Data)
	}
	return nil
}

// AddWithBroadcast adds a bias vector of shape [cols] to every row of a 2D tensor.
func (t *Tensor) AddWithBroadcast(bias *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 || len(bias.Data) != t.Shape[1] {
		return nil, fmt.Errorf("incompatible shapes for AddWithBroadcast: %v and %v", t.Shape, bias.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	resultData := make([]float64, len(t.Data))
	for i := 0; i < rows; i++ {
		floats.AddTo(resultData[i*cols:(i+1)*cols], t.Data[i*cols:(i+1)*cols], bias.Data)
	}

	result := NewTensor([]int{rows, cols}, resultData, t.RequiresGrad || bias.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &AddWithBroadcastOperation{t, bias}
	}
	return result, nil
}

// AddWithBroadcastOperation represents the broadcast bias addition for backward pass.
type AddWithBroadcastOperation struct {
	Input *Tensor
	Bias  *Tensor
}

func (op *AddWithBroadcastOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input, op.Bias}
}

func (op *AddWithBroadcastOperation) Backward(grad *Tensor) error {
	if op.Input.RequiresGrad {
		op.Input.accumulate(grad.Data)
	}
	if op.Bias.RequiresGrad {
		rows, cols := grad.Shape[0], grad.Shape[1]
		sum := make([]float64, cols)
		for i := 0; i < rows; i++ {
			floats.Add(sum, grad.Data[i*cols:(i+1)*cols])
		}
		op.Bias.accumulate(sum)
	}
	return nil
}

// MatMul performs 2D matrix multiplication with another Tensor.
func (t *Tensor) MatMul(other *Tensor) (*Tensor, error) {
	if len(t.Shape) != 2 || len(other.Shape) != 2 || t.Shape[1] != other.Shape[0] {
		return nil, fmt.Errorf("incompatible shapes for 2D matrix multiplication: %v and %v", t.Shape, other.Shape)
	}
	rows, cols := t.Shape[0], other.Shape[1]

	a := mat.NewDense(t.Shape[0], t.Shape[1], t.Data)
	b := mat.NewDense(other.Shape[0], other.Shape[1], other.Data)
	resultData := make([]float64, rows*cols)
	mat.NewDense(rows, cols, resultData).Mul(a, b)

	result := NewTensor([]int{rows, cols}, resultData, t.RequiresGrad || other.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &MatmulOperation{t, other}
	}
	return result, nil
}

// MatmulOperation represents the matrix multiplication operation for backward pass.
type MatmulOperation struct {
	A *Tensor
	B *Tensor
}

func (op *MatmulOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.B}
}

func (op *MatmulOperation) Backward(grad *Tensor) error {
	a := mat.NewDense(op.A.Shape[0], op.A.Shape[1], op.A.Data)
	b := mat.NewDense(op.B.Shape[0], op.B.Shape[1], op.B.Data)
	g := mat.NewDense(grad.Shape[0], grad.Shape[1], grad.Data)

	// dL/dA = grad * B^T
	if op.A.RequiresGrad {
		gradA := make([]float64, len(op.A.Data))
		mat.NewDense(op.A.Shape[0], op.A.Shape[1], gradA).Mul(g, b.T())
		op.A.accumulate(gradA)
	}
	// dL/dB = A^T * grad
	if op.B.RequiresGrad {
		gradB := make([]float64, len(op.B.Data))
		mat.NewDense(op.B.Shape[0], op.B.Shape[1], gradB).Mul(a.T(), g)
		op.B.accumulate(gradB)
	}
	return nil
}

// Mul performs element-wise multiplication of two tensors.
func (t *Tensor) Mul(other *Tensor) (*Tensor, error) {
	if !compareShapes(t.Shape, other.Shape) {
		return nil, fmt.Errorf("mismatched shapes for Mul operation: %v and %v", t.Shape, other.Shape)
	}
	resultData := make([]float64, len(t.Data))
	floats.MulTo(resultData, t.Data, other.Data)

	result := NewTensor(t.Shape, resultData, t.RequiresGrad || other.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &MulOperation{t, other}
	}
	return result, nil
}

// MulOperation represents the element-wise multiplication for backward pass.
type MulOperation struct {
	A *Tensor
	B *Tensor
}

func (op *MulOperation) Inputs() []*Tensor {
	return []*Tensor{op.A, op.B}
}

func (op *MulOperation) Backward(grad *Tensor) error {
	if op.A.RequiresGrad {
		g := make([]float64, len(grad.Data))
		floats.MulTo(g, grad.Data, op.B.Data)
		op.A.accumulate(g)
	}
	if op.B.RequiresGrad {
		g := make([]float64, len(grad.Data))
		floats.MulTo(g, grad.Data, op.A.Data)
		op.B.accumulate(g)
	}
	return nil
}

// Tanh applies the hyperbolic tangent function element-wise to the tensor.
func (t *Tensor) Tanh() (*Tensor, error) {
	resultData := make([]float64, len(t.Data))
	for i, val := range t.Data {
		resultData[i] = math.Tanh(val)
	}

	result := NewTensor(t.Shape, resultData, t.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &TanhOperation{Input: t, Output: result}
	}
	return result, nil
}

// TanhOperation represents the tanh operation for backward pass.
type TanhOperation struct {
	Input  *Tensor
	Output *Tensor
}

func (op *TanhOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *TanhOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	// d(tanh(x))/dx = 1 - tanh(x)^2
	g := make([]float64, len(grad.Data))
	for i, y := range op.Output.Data {
		g[i] = grad.Data[i] * (1 - y*y)
	}
	op.Input.accumulate(g)
	return nil
}

// Sigmoid applies the sigmoid function element-wise to the tensor.
func (t *Tensor) Sigmoid() (*Tensor, error) {
	resultData := make([]float64, len(t.Data))
	for i, val := range t.Data {
		resultData[i] = 1.0 / (1.0 + math.Exp(-val))
	}

	result := NewTensor(t.Shape, resultData, t.RequiresGrad)
	if result.RequiresGrad {
		result.Creator = &SigmoidOperation{Input: t, Output: result}
	}
	return result, nil
}

// SigmoidOperation represents the sigmoid operation for backward pass.
type SigmoidOperation struct {
	Input  *Tensor
	Output *Tensor
}

func (op *SigmoidOperation) Inputs() []*Tensor {
	return []*Tensor{op.Input}
}

func (op *SigmoidOperation) Backward(grad *Tensor) error {
	if !op.Input.RequiresGrad {
		return nil
	}
	// d(sigmoid(x))/dx = sigmoid(x) * (1 - sigmoid(x))
	g := make([]float64, len(grad.Data))
	for i, y := range op.Output.Data {
		g[i] = grad.Data[i] * y * (1 - y)
	}
	op.Input.accumulate(g)
	return nil
}

// Backward performs backpropagation starting from this tensor.
func (t *Tensor) Backward(grad *Tensor) error {
	topo := []*Tensor{}
	visited := map[*Tensor]bool{}

	// Post-order DFS: a node is appended after all of its inputs.
	var visit func(v *Tensor)
	visit = func(v *Tensor) {
		if v == nil || visited[v] {
			return
		}
		visited[v] = true
		if v.Creator != nil {
			for _, child := range v.Creator.Inputs() {
				visit(child)
			}
		}
		topo = append(topo, v)
	}
	visit(t)

	for _, v := range topo {
		if v.Creator != nil {
			// Intermediate nodes start every pass from zero.
			v.Grad = NewTensor(v.Shape, nil, false)
		}
	}
	if t.Grad == nil {
		t.Grad = NewTensor(t.Shape, nil, false)
	}
	copy(t.Grad.Data, grad.Data)

	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		if v.Creator == nil {
			continue
		}
		if err := v.Creator.Backward(v.Grad); err != nil {
			return fmt.Errorf("error during backward pass for tensor with shape %v: %w", v.Shape, err)
		}
	}
	return nil
}
