package nn

import (
	"fmt"

	"golang.org/x/exp/rand"

	. "github.com/golangast/nlutrain/neural/tensor"
)

// LanguageModelConfig describes a recurrent word-level language model.
type LanguageModelConfig struct {
	Cell             string // "rnn" or "lstm"
	EmbeddingSize    int
	HiddenSize       int
	VocabSize        int
	PadID            int
	EmbeddingDropout float64
	OutputDropout    float64
}

// LanguageModel predicts the next token at every position:
// embedding -> recurrent layer -> linear projection onto the vocabulary.
type LanguageModel struct {
	mode
	Config    LanguageModelConfig
	Embedding *Embedding
	RNN       *Recurrent
	Output    *Linear
	rng       *rand.Rand
}

// NewLanguageModel creates a LanguageModel in training mode.
func NewLanguageModel(cfg LanguageModelConfig, rng *rand.Rand) (*LanguageModel, error) {
	emb, err := NewEmbedding(cfg.VocabSize, cfg.EmbeddingSize, cfg.PadID, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	cell, err := NewCell(cfg.Cell, cfg.EmbeddingSize, cfg.HiddenSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create recurrent cell: %w", err)
	}
	out, err := NewLinear(cfg.HiddenSize, cfg.VocabSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create output layer: %w", err)
	}
	m := &LanguageModel{
		Config:    cfg,
		Embedding: emb,
		RNN:       &Recurrent{Cell: cell},
		Output:    out,
		rng:       rng,
	}
	m.Train()
	return m, nil
}

// SetRand sets the random source used by dropout, e.g. after loading from disk.
func (m *LanguageModel) SetRand(rng *rand.Rand) { m.rng = rng }

// Train switches the model to training mode.
func (m *LanguageModel) Train() { m.setMode(true) }

// Eval switches the model to evaluation mode: no gradient tracking, no dropout.
func (m *LanguageModel) Eval() { m.setMode(false) }

func (m *LanguageModel) setMode(training bool) {
	m.setTraining(training)
	m.Embedding.setTraining(training)
	m.RNN.Cell.setTraining(training)
	m.Output.setTraining(training)
}

// Parameters returns all learnable parameters of the model.
func (m *LanguageModel) Parameters() []*Tensor {
	params := m.Embedding.Parameters()
	params = append(params, m.RNN.Cell.Parameters()...)
	return append(params, m.Output.Parameters()...)
}

// Forward returns next-token logits of shape [steps*batch, vocab] in
// time-major row order (see TimeMajor) for a right-padded [batch][steps] input.
func (m *LanguageModel) Forward(source [][]int) (*Tensor, error) {
	if len(source) == 0 || len(source[0]) == 0 {
		return nil, fmt.Errorf("LanguageModel.Forward received an empty batch")
	}
	batch, steps := len(source), len(source[0])
	inputs := make([]*Tensor, steps)
	ids := make([]int, batch)
	for t := 0; t < steps; t++ {
		for b := 0; b < batch; b++ {
			ids[b] = source[b][t]
		}
		x, err := m.Embedding.Forward(ids)
		if err != nil {
			return nil, err
		}
		x, err = m.dropout(x, m.Config.EmbeddingDropout, m.rng)
		if err != nil {
			return nil, err
		}
		inputs[t] = x
	}

	outputs, _, err := m.RNN.Forward(inputs, nil)
	if err != nil {
		return nil, err
	}
	hidden, err := Concat(outputs, 0)
	if err != nil {
		return nil, err
	}
	hidden, err = m.dropout(hidden, m.Config.OutputDropout, m.rng)
	if err != nil {
		return nil, err
	}
	return m.Output.Forward(hidden)
}

// Clone returns an independent deep copy of the model in evaluation mode.
func (m *LanguageModel) Clone() *LanguageModel {
	c := &LanguageModel{
		Config:    m.Config,
		Embedding: m.Embedding.Clone(),
		RNN:       &Recurrent{Cell: m.RNN.Cell.clone(), Reverse: m.RNN.Reverse},
		Output:    m.Output.Clone(),
		rng:       m.rng,
	}
	c.Eval()
	return c
}
