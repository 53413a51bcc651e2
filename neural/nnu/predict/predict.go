// Package predict runs trained models on raw text.
package predict

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/batch"
	"github.com/golangast/nlutrain/neural/nnu/corpus"
	"github.com/golangast/nlutrain/neural/nnu/train"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
	"github.com/golangast/nlutrain/neural/tensor"
	"github.com/golangast/nlutrain/tagger/conll"
)

// ErrEmptyInput is returned for input without any words.
var ErrEmptyInput = errors.New("predict: empty input")

// Prediction is the decoded output of the joint model for one utterance.
type Prediction struct {
	Intent     string
	Confidence float64 // softmax probability of Intent
	Slots      []conll.Token
}

// Tagger predicts the intent and slot tags of utterances.
type Tagger struct {
	Model *nn.JointModel
	Lang  *vocab.Lang
}

// NewTagger puts model in evaluation mode and wraps it.
func NewTagger(model *nn.JointModel, lang *vocab.Lang) *Tagger {
	model.Eval()
	return &Tagger{Model: model, Lang: lang}
}

// Predict tags one whitespace-separated utterance. Words missing from the
// vocabulary are read as the unknown token.
func (t *Tagger) Predict(utterance string) (*Prediction, error) {
	words := strings.Fields(utterance)
	if len(words) == 0 {
		return nil, ErrEmptyInput
	}
	ids, err := t.Lang.Words.EncodeAll(words)
	if err != nil {
		return nil, errors.Wrap(err, "encode utterance")
	}
	mask := make([]int, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	slotLogits, intentLogits, err := t.Model.Forward([][]int{ids}, [][]int{mask})
	if err != nil {
		return nil, errors.Wrap(err, "forward")
	}

	// One sequence, so row i of the slot logits is step i.
	tags, err := t.Lang.Slots.DecodeAll(slotLogits.ArgmaxRows())
	if err != nil {
		return nil, errors.Wrap(err, "decode slots")
	}
	intentID := intentLogits.ArgmaxRows()[0]
	intent, err := t.Lang.Intents.Decode(intentID)
	if err != nil {
		return nil, errors.Wrap(err, "decode intent")
	}
	p := &Prediction{
		Intent:     intent,
		Confidence: tensor.Softmax(intentLogits).Data[intentID],
		Slots:      make([]conll.Token, len(words)),
	}
	for i, w := range words {
		p.Slots[i] = conll.Token{Word: w, Tag: tags[i]}
	}
	return p, nil
}

// Chunks groups the predicted slot tags into labelled spans, e.g.
// "fromloc.city_name" -> "new york".
func (p *Prediction) Chunks() map[string][]string {
	out := map[string][]string{}
	var label string
	var words []string
	flush := func() {
		if label != "" {
			out[label] = append(out[label], strings.Join(words, " "))
		}
		label, words = "", nil
	}
	for _, tok := range p.Slots {
		prefix, class, ok := strings.Cut(tok.Tag, "-")
		switch {
		case !ok || tok.Tag == conll.OTag:
			flush()
		case prefix == "B" || class != label:
			flush()
			label, words = class, []string{tok.Word}
		default:
			words = append(words, tok.Word)
		}
	}
	flush()
	return out
}

// SentencePerplexity scores one sentence with a language model. The sentence
// is terminated with the end-of-sentence token as in training.
func SentencePerplexity(model *nn.LanguageModel, v *vocab.Vocabulary, sentence string) (float64, error) {
	words := append(strings.Fields(sentence), corpus.EOS)
	if len(words) < 2 {
		return 0, ErrEmptyInput
	}
	samples, err := batch.NewLMDataset([][]string{words}, v)
	if err != nil {
		return 0, errors.Wrap(err, "encode sentence")
	}
	b := batch.CollateLM(samples, v.MustEncode(vocab.LMPadToken))
	ppl, _, err := train.EvalLM([]batch.LMBatch{b}, model)
	return ppl, err
}
