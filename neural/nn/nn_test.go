package nn

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	. "github.com/golangast/nlutrain/neural/tensor"
)

func TestCrossEntropyIgnoresPadding(t *testing.T) {
	logits := NewTensor([]int{3, 2}, []float64{0, 0, 2, 0, 5, -5}, true)
	targets := []int{0, 1, 0}

	mean, err := CrossEntropy{IgnoreIndex: 0, Reduction: ReductionMean}.Forward(logits, targets)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	// Only row 1 counts: -log(softmax([2, 0])[1]).
	expected := math.Log(1 + math.Exp(2))
	if math.Abs(mean.Item()-expected) > 1e-12 {
		t.Errorf("mean loss = %v, expected %v", mean.Item(), expected)
	}

	sum, err := CrossEntropy{IgnoreIndex: IgnoreNone, Reduction: ReductionSum}.Forward(logits, targets)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	all := math.Log(2) + expected + math.Log(1+math.Exp(-10))
	if math.Abs(sum.Item()-all) > 1e-12 {
		t.Errorf("sum loss = %v, expected %v", sum.Item(), all)
	}

	logits.ZeroGrad()
	if err := mean.Backward(Scalar(1)); err != nil {
		t.Fatalf("Backward: %v", err)
	}
	for _, i := range []int{0, 1, 4, 5} {
		if logits.Grad.Data[i] != 0 {
			t.Errorf("padded rows must not receive gradient, grad[%d] = %v", i, logits.Grad.Data[i])
		}
	}
	if logits.Grad.Data[2] <= 0 || logits.Grad.Data[3] >= 0 {
		t.Errorf("unexpected gradient sign for the counted row: %v", logits.Grad.Data[2:4])
	}
}

func TestCrossEntropyAllIgnored(t *testing.T) {
	logits := NewTensor([]int{2, 2}, []float64{1, 2, 3, 4}, false)
	loss, err := CrossEntropy{IgnoreIndex: 0}.Forward(logits, []int{0, 0})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if loss.Item() != 0 {
		t.Errorf("loss over no targets = %v, expected 0", loss.Item())
	}
	if _, err := (CrossEntropy{IgnoreIndex: 0}).Forward(logits, []int{1}); err == nil {
		t.Errorf("expected an error for mismatched target count")
	}
}

func TestClipGradNorm(t *testing.T) {
	a := NewTensor([]int{2}, nil, true)
	b := NewTensor([]int{1}, nil, true)
	a.ZeroGrad()
	b.ZeroGrad()
	a.Grad.Data[0], a.Grad.Data[1] = 3, 0
	b.Grad.Data[0] = 4

	norm := ClipGradNorm([]*Tensor{a, b}, 1)
	if math.Abs(norm-5) > 1e-12 {
		t.Errorf("norm = %v, expected 5", norm)
	}
	clipped := math.Sqrt(a.Grad.Data[0]*a.Grad.Data[0] + b.Grad.Data[0]*b.Grad.Data[0])
	if math.Abs(clipped-1) > 1e-5 {
		t.Errorf("clipped norm = %v, expected 1", clipped)
	}

	a.Grad.Data[0], b.Grad.Data[0] = 0.3, 0.4
	ClipGradNorm([]*Tensor{a, b}, 5)
	if a.Grad.Data[0] != 0.3 || b.Grad.Data[0] != 0.4 {
		t.Errorf("gradients under the threshold must not change")
	}
}

func TestOptimizersMoveAgainstGradient(t *testing.T) {
	for _, kind := range []string{"sgd", "adam", "adamw"} {
		t.Run(kind, func(t *testing.T) {
			p := NewTensor([]int{2}, []float64{1, -1}, true)
			opt, err := NewOptimizer(kind, []*Tensor{p}, 0.1, 0.01)
			if err != nil {
				t.Fatalf("NewOptimizer: %v", err)
			}
			opt.ZeroGrad()
			p.Grad.Data[0], p.Grad.Data[1] = 1, -1
			opt.Step()
			if p.Data[0] >= 1 || p.Data[1] <= -1 {
				t.Errorf("parameters did not move against the gradient: %v", p.Data)
			}
			opt.ZeroGrad()
			if p.Grad.Data[0] != 0 || p.Grad.Data[1] != 0 {
				t.Errorf("ZeroGrad left %v", p.Grad.Data)
			}
		})
	}
	if _, err := NewOptimizer("rmsprop", nil, 0.1, 0); err == nil {
		t.Errorf("expected an error for an unknown optimizer")
	}
}

func TestTimeMajor(t *testing.T) {
	got := TimeMajor([][]int{{1, 2, 3}, {4, 5, 0}})
	expected := []int{1, 4, 2, 5, 3, 0}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("TimeMajor() = %v, expected %v", got, expected)
		}
	}
}

func TestLanguageModelLearnsToyCorpus(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, cell := range []string{"rnn", "lstm"} {
		t.Run(cell, func(t *testing.T) {
			model, err := NewLanguageModel(LanguageModelConfig{
				Cell: cell, EmbeddingSize: 8, HiddenSize: 8, VocabSize: 5, PadID: 0,
			}, rng)
			if err != nil {
				t.Fatalf("NewLanguageModel: %v", err)
			}
			opt := NewAdamW(model.Parameters(), 0.05, 0.01)
			criterion := CrossEntropy{IgnoreIndex: 0, Reduction: ReductionMean}
			source := [][]int{{1, 2, 3, 4}, {1, 2, 3, 0}}
			target := [][]int{{2, 3, 4, 1}, {2, 3, 4, 0}}

			var first, last float64
			for step := 0; step < 60; step++ {
				opt.ZeroGrad()
				logits, err := model.Forward(source)
				if err != nil {
					t.Fatalf("Forward: %v", err)
				}
				loss, err := criterion.Forward(logits, TimeMajor(target))
				if err != nil {
					t.Fatalf("loss: %v", err)
				}
				if err := loss.Backward(Scalar(1)); err != nil {
					t.Fatalf("Backward: %v", err)
				}
				ClipGradNorm(model.Parameters(), 5)
				opt.Step()
				if step == 0 {
					first = loss.Item()
				}
				last = loss.Item()
			}
			if last >= first/2 {
				t.Errorf("loss did not drop enough: first %v, last %v", first, last)
			}
			if row := model.Embedding.Weight.Row(0); row[0] != 0 {
				t.Errorf("pad embedding row changed: %v", row)
			}
		})
	}
}

func TestJointModelIgnoresPaddingForIntent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, bidi := range []bool{false, true} {
		model, err := NewJointModel(JointModelConfig{
			EmbeddingSize: 4, HiddenSize: 5, VocabSize: 6, NumSlots: 3, NumIntents: 2, PadID: 0,
			Bidirectional: bidi,
		}, rng)
		if err != nil {
			t.Fatalf("NewJointModel: %v", err)
		}
		model.Eval()

		_, short, err := model.Forward([][]int{{3, 4}}, [][]int{{1, 1}})
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		slots, padded, err := model.Forward([][]int{{3, 4, 0, 0}}, [][]int{{1, 1, 0, 0}})
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		if padded.RequiresGrad {
			t.Errorf("eval mode should not track gradients")
		}
		if slots.Rows() != 4 || slots.Cols() != 3 {
			t.Errorf("slot logits shape = %v, expected [4 3]", slots.Shape)
		}
		for i := range short.Data {
			if math.Abs(short.Data[i]-padded.Data[i]) > 1e-12 {
				t.Errorf("bidirectional=%v: intent logits depend on padding: %v vs %v", bidi, short.Data, padded.Data)
				break
			}
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	model, err := NewJointModel(JointModelConfig{
		EmbeddingSize: 3, HiddenSize: 3, VocabSize: 4, NumSlots: 2, NumIntents: 2, PadID: 0,
	}, rng)
	if err != nil {
		t.Fatalf("NewJointModel: %v", err)
	}
	snapshot := model.Clone()
	before := snapshot.SlotOut.Weights.Data[0]
	model.SlotOut.Weights.Data[0] += 1
	if snapshot.SlotOut.Weights.Data[0] != before {
		t.Errorf("mutating the model changed its snapshot")
	}
	if len(snapshot.Parameters()) != len(model.Parameters()) {
		t.Errorf("snapshot has %d parameters, model has %d", len(snapshot.Parameters()), len(model.Parameters()))
	}
}
