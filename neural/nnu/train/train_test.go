package train

import (
	"math"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/batch"
	"github.com/golangast/nlutrain/neural/nnu/corpus"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
	"github.com/golangast/nlutrain/neural/tensor"
	"github.com/golangast/nlutrain/tagger/conll"
)

func TestEarlyStopper(t *testing.T) {
	snapshot := func(m []float64) []float64 { return append([]float64(nil), m...) }
	stopper := NewEarlyStopper(3, snapshot)

	metrics := []float64{5.0, 4.0, 4.5, 4.6, 4.7}
	model := []float64{0}
	stoppedAt := -1
	for i, metric := range metrics {
		model[0] = metric
		if _, stop := stopper.Observe(metric, model); stop {
			stoppedAt = i
			break
		}
	}
	if stoppedAt != 4 {
		t.Errorf("stopped after metric index %d, expected 4", stoppedAt)
	}
	if stopper.Best != 4.0 || stopper.BestModel[0] != 4.0 {
		t.Errorf("best = %v with snapshot %v, expected 4.0", stopper.Best, stopper.BestModel)
	}
	if model[0] != 4.7 {
		t.Fatalf("test model mutated unexpectedly")
	}
}

func TestEarlyStopperRequiresStrictImprovement(t *testing.T) {
	calls := 0
	stopper := NewEarlyStopper(2, func(m int) int { calls++; return m })
	tests := []struct {
		metric   float64
		improved bool
		stop     bool
	}{
		{3, true, false},
		{3, false, false},
		{2, true, false},
		{math.NaN(), false, false},
		{2, false, true},
	}
	for i, tt := range tests {
		improved, stop := stopper.Observe(tt.metric, i)
		if improved != tt.improved || stop != tt.stop {
			t.Errorf("observation %d (%v): improved=%v stop=%v, expected %v %v", i, tt.metric, improved, stop, tt.improved, tt.stop)
		}
	}
	if calls != 2 || stopper.BestModel != 2 {
		t.Errorf("snapshot taken %d times, best model %d", calls, stopper.BestModel)
	}
}

func TestJointLossIsUnweightedSum(t *testing.T) {
	intent := tensor.NewTensor([]int{1}, []float64{0.30}, true)
	slot := tensor.NewTensor([]int{1}, []float64{1.20}, true)
	loss, err := JointLoss(intent, slot)
	if err != nil {
		t.Fatalf("JointLoss: %v", err)
	}
	if math.Abs(loss.Item()-1.50) > 1e-12 {
		t.Errorf("JointLoss = %v, expected 1.50", loss.Item())
	}
}

func TestPerplexity(t *testing.T) {
	if p := Perplexity(0, 10); p != 1 {
		t.Errorf("Perplexity(0, 10) = %v, expected 1", p)
	}
	if !(Perplexity(20, 10) > Perplexity(10, 10)) {
		t.Errorf("perplexity must grow with the summed loss")
	}
	if math.Abs(Perplexity(10*math.Log(5), 10)-5) > 1e-9 {
		t.Errorf("Perplexity of a uniform 5-way guess = %v, expected 5", Perplexity(10*math.Log(5), 10))
	}
	if !math.IsInf(Perplexity(1, 0), 1) {
		t.Errorf("Perplexity over no tokens should be +Inf")
	}
}

func TestAlignSlots(t *testing.T) {
	words := []string{"to", "boston", "pad", "pad"}
	tests := []struct {
		name        string
		ref, hyp    []string
		length      int
		expectedRef []string
		expectedHyp []string
	}{
		{
			name:        "truncates to the valid length",
			ref:         []string{"O", "B-city", "pad", "pad"},
			hyp:         []string{"O", "B-city", "B-city", "O"},
			length:      2,
			expectedRef: []string{"O", "B-city"},
			expectedHyp: []string{"O", "B-city"},
		},
		{
			name:        "drops pad-tagged positions inside the length",
			ref:         []string{"O", "B-city", "pad", "pad"},
			hyp:         []string{"O", "O", "B-city", "O"},
			length:      3,
			expectedRef: []string{"O", "B-city"},
			expectedHyp: []string{"O", "O"},
		},
		{
			name:        "length beyond the row",
			ref:         []string{"O", "O", "O", "pad"},
			hyp:         []string{"O", "O", "O", "O"},
			length:      9,
			expectedRef: []string{"O", "O", "O"},
			expectedHyp: []string{"O", "O", "O"},
		},
	}
	tags := func(toks []conll.Token) []string {
		out := make([]string, len(toks))
		for i, tok := range toks {
			out[i] = tok.Tag
		}
		return out
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, hyp := AlignSlots(words, tt.ref, tt.hyp, tt.length)
			if len(ref) != len(hyp) {
				t.Fatalf("ref has %d tokens, hyp %d", len(ref), len(hyp))
			}
			if !reflect.DeepEqual(tags(ref), tt.expectedRef) || !reflect.DeepEqual(tags(hyp), tt.expectedHyp) {
				t.Errorf("AlignSlots() = %v / %v, expected %v / %v", tags(ref), tags(hyp), tt.expectedRef, tt.expectedHyp)
			}
			for i := range ref {
				if ref[i].Word != hyp[i].Word {
					t.Errorf("position %d pairs %q with %q", i, ref[i].Word, hyp[i].Word)
				}
			}
		})
	}
}

func lmFixture(t *testing.T) ([]batch.LMBatch, *nn.LanguageModel) {
	t.Helper()
	lines := [][]string{
		{"a", "b", "c", vocab.EOSToken},
		{"a", "b", vocab.EOSToken},
		{"c", "b", "a", "b", "c", vocab.EOSToken},
	}
	v := vocab.NewLMVocabulary(lines)
	samples, err := batch.NewLMDataset(lines, v)
	if err != nil {
		t.Fatalf("NewLMDataset: %v", err)
	}
	loader := batch.NewLoader(samples, 2, func(s []batch.LMSample) batch.LMBatch { return batch.CollateLM(s, 0) }, nil)
	model, err := nn.NewLanguageModel(nn.LanguageModelConfig{
		Cell: "lstm", EmbeddingSize: 6, HiddenSize: 6, VocabSize: v.Size(), PadID: 0,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewLanguageModel: %v", err)
	}
	return loader.Batches(), model
}

func TestEvalLMUsesNonPadTokens(t *testing.T) {
	data, model := lmFixture(t)

	ppl, losses, err := EvalLM(data, model)
	if err != nil {
		t.Fatalf("EvalLM: %v", err)
	}
	total, tokens := 0.0, 0
	for i, b := range data {
		total += losses[i]
		tokens += b.NumTokens
		sum := 0
		for _, n := range b.Lengths {
			sum += n
		}
		if sum != b.NumTokens {
			t.Errorf("batch %d counts %d tokens, lengths add up to %d", i, b.NumTokens, sum)
		}
	}
	if tokens != 3+2+5 {
		t.Errorf("evaluated %d tokens, expected 10", tokens)
	}
	if math.Abs(ppl-math.Exp(total/float64(tokens))) > 1e-9 {
		t.Errorf("ppl = %v, expected exp(%v/%d)", ppl, total, tokens)
	}
	if ppl < 1 {
		t.Errorf("ppl = %v, expected at least 1", ppl)
	}

	again, _, err := EvalLM(data, model)
	if err != nil || again != ppl {
		t.Errorf("evaluation is not deterministic: %v then %v (%v)", ppl, again, err)
	}
}

func TestFitLMReturnsBestSnapshot(t *testing.T) {
	data, model := lmFixture(t)
	opt := nn.NewAdamW(model.Parameters(), 0.01, 0.01)

	var seen []EpochStats
	opts := FitOptions{Epochs: 6, Patience: 3, Clip: 5, OnEpoch: func(st EpochStats) { seen = append(seen, st) }}
	best, history, err := FitLM(opts, func() []batch.LMBatch { return data }, data, opt, model)
	if err != nil {
		t.Fatalf("FitLM: %v", err)
	}
	if best == nil || best == model {
		t.Fatalf("FitLM must return an independent snapshot")
	}
	if len(history) == 0 || len(history) != len(seen) {
		t.Fatalf("history has %d entries, callback saw %d", len(history), len(seen))
	}
	bestPPL := math.Inf(1)
	for _, st := range history {
		if st.Metric < bestPPL {
			bestPPL = st.Metric
		}
	}
	ppl, _, err := EvalLM(data, best)
	if err != nil {
		t.Fatalf("EvalLM: %v", err)
	}
	if math.Abs(ppl-bestPPL) > 1e-9 {
		t.Errorf("snapshot ppl = %v, best recorded ppl = %v", ppl, bestPPL)
	}
	if history[len(history)-1].Metric >= history[0].Metric*2 {
		t.Errorf("training diverged: %+v", history)
	}
}

func TestFitLMWithoutFiniteDevMetric(t *testing.T) {
	data, model := lmFixture(t)
	opt := nn.NewAdamW(model.Parameters(), 0.01, 0.01)

	opts := FitOptions{Epochs: 2, Patience: 3, Clip: 5}
	best, history, err := FitLM(opts, func() []batch.LMBatch { return data }, nil, opt, model)
	if !errors.Is(err, ErrNoImprovement) {
		t.Fatalf("FitLM() error = %v, expected ErrNoImprovement", err)
	}
	if best != nil {
		t.Errorf("FitLM returned a model without any finite dev metric")
	}
	if len(history) != 2 {
		t.Errorf("history has %d entries, expected 2", len(history))
	}
	for _, st := range history {
		if !math.IsInf(st.Metric, 1) || st.Improved {
			t.Errorf("epoch %d = %+v, expected an infinite, unimproved metric", st.Epoch, st)
		}
	}
}

func jointFixture(t *testing.T) ([]batch.JointBatch, *nn.JointModel, *vocab.Lang) {
	t.Helper()
	data := []corpus.Utterance{
		{Utterance: "flights to boston", Slots: "O O B-city", Intent: "flight"},
		{Utterance: "to denver", Slots: "O B-city", Intent: "flight"},
		{Utterance: "cheap fare", Slots: "O O", Intent: "airfare"},
	}
	intents, slots := corpus.Labels(data)
	slots = append(slots, "B-foo")
	lang := vocab.NewLang(corpus.Sentences(data), 0, intents, slots)
	samples, err := batch.NewJointDataset(data, lang)
	if err != nil {
		t.Fatalf("NewJointDataset: %v", err)
	}
	model, err := nn.NewJointModel(nn.JointModelConfig{
		EmbeddingSize: 4, HiddenSize: 4, VocabSize: lang.Words.Size(),
		NumSlots: lang.Slots.Size(), NumIntents: lang.Intents.Size(),
	}, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("NewJointModel: %v", err)
	}
	return []batch.JointBatch{batch.CollateJoint(samples, lang.PadID())}, model, lang
}

func TestEvalJointFallsBackOnUnknownTag(t *testing.T) {
	data, model, lang := jointFixture(t)
	model.SlotOut.Biases.Data[lang.Slots.MustEncode("B-foo")] = 100

	res, err := EvalJoint(data, model, lang)
	if err != nil {
		t.Fatalf("EvalJoint must not fail on an unseen tag: %v", err)
	}
	if res.Slots.Total.F != 0 {
		t.Errorf("Total.F = %v, expected 0", res.Slots.Total.F)
	}
	if len(res.Losses) != len(data) {
		t.Errorf("got %d losses for %d batches", len(res.Losses), len(data))
	}
	if res.Intents.Classes == nil {
		t.Errorf("intent report missing")
	}
}

func TestEvalJointAlignsToValidLength(t *testing.T) {
	data, model, lang := jointFixture(t)
	model.SlotOut.Biases.Data[lang.Slots.MustEncode("O")] = 100
	model.IntentOut.Biases.Data[lang.Intents.MustEncode("flight")] = 100

	res, err := EvalJoint(data, model, lang)
	if err != nil {
		t.Fatalf("EvalJoint: %v", err)
	}
	b := data[0]
	for s := range b.Utterances {
		n := ValidLength(b.Mask[s])
		if len(res.RefSlots[s]) != n || len(res.HypSlots[s]) != n {
			t.Errorf("sequence %d: %d ref and %d hyp tokens, expected %d", s, len(res.RefSlots[s]), len(res.HypSlots[s]), n)
		}
	}
	if got := res.Slots.Classes["city"]; got.Support != 2 || got.Recall != 0 {
		t.Errorf("city = %+v, expected two missed chunks", got)
	}
	if math.Abs(res.Intents.Accuracy-2.0/3) > 1e-12 {
		t.Errorf("intent accuracy = %v, expected 2/3", res.Intents.Accuracy)
	}
}

func TestTrainJointReducesLoss(t *testing.T) {
	data, model, _ := jointFixture(t)
	opt := nn.NewAdam(model.Parameters(), 0.05)

	first, err := TrainJoint(data, opt, model, 5)
	if err != nil {
		t.Fatalf("TrainJoint: %v", err)
	}
	var last []float64
	for i := 0; i < 40; i++ {
		if last, err = TrainJoint(data, opt, model, 5); err != nil {
			t.Fatalf("TrainJoint: %v", err)
		}
	}
	if last[0] >= first[0] {
		t.Errorf("joint loss did not decrease: %v -> %v", first[0], last[0])
	}
}
