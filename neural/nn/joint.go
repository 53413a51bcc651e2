package nn

import (
	"fmt"

	"golang.org/x/exp/rand"

	. "github.com/golangast/nlutrain/neural/tensor"
)

// JointModelConfig describes the joint intent and slot model.
type JointModelConfig struct {
	EmbeddingSize int
	HiddenSize    int
	VocabSize     int
	NumSlots      int
	NumIntents    int
	PadID         int
	Bidirectional bool
	Dropout       float64
}

// JointModel shares one LSTM encoder between a per-token slot head and a
// per-utterance intent head. The intent head reads the encoder state at the
// last valid position of each utterance.
type JointModel struct {
	mode
	Config    JointModelConfig
	Embedding *Embedding
	Encoder   *Recurrent
	Reverse   *Recurrent // nil unless Bidirectional
	SlotOut   *Linear
	IntentOut *Linear
	rng       *rand.Rand
}

// NewJointModel creates a JointModel in training mode.
func NewJointModel(cfg JointModelConfig, rng *rand.Rand) (*JointModel, error) {
	emb, err := NewEmbedding(cfg.VocabSize, cfg.EmbeddingSize, cfg.PadID, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	fwd, err := NewLSTMCell(cfg.EmbeddingSize, cfg.HiddenSize, rng)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	m := &JointModel{
		Config:    cfg,
		Embedding: emb,
		Encoder:   &Recurrent{Cell: fwd},
		rng:       rng,
	}
	outSize := cfg.HiddenSize
	if cfg.Bidirectional {
		bwd, err := NewLSTMCell(cfg.EmbeddingSize, cfg.HiddenSize, rng)
		if err != nil {
			return nil, fmt.Errorf("failed to create reverse encoder: %w", err)
		}
		m.Reverse = &Recurrent{Cell: bwd, Reverse: true}
		outSize *= 2
	}
	if m.SlotOut, err = NewLinear(outSize, cfg.NumSlots, rng); err != nil {
		return nil, fmt.Errorf("failed to create slot head: %w", err)
	}
	if m.IntentOut, err = NewLinear(outSize, cfg.NumIntents, rng); err != nil {
		return nil, fmt.Errorf("failed to create intent head: %w", err)
	}
	m.Train()
	return m, nil
}

// SetRand sets the random source used by dropout, e.g. after loading from disk.
func (m *JointModel) SetRand(rng *rand.Rand) { m.rng = rng }

// Train switches the model to training mode.
func (m *JointModel) Train() { m.setMode(true) }

// Eval switches the model to evaluation mode: no gradient tracking, no dropout.
func (m *JointModel) Eval() { m.setMode(false) }

func (m *JointModel) setMode(training bool) {
	m.setTraining(training)
	m.Embedding.setTraining(training)
	m.Encoder.Cell.setTraining(training)
	if m.Reverse != nil {
		m.Reverse.Cell.setTraining(training)
	}
	m.SlotOut.setTraining(training)
	m.IntentOut.setTraining(training)
}

// Parameters returns all learnable parameters of the model.
func (m *JointModel) Parameters() []*Tensor {
	params := m.Embedding.Parameters()
	params = append(params, m.Encoder.Cell.Parameters()...)
	if m.Reverse != nil {
		params = append(params, m.Reverse.Cell.Parameters()...)
	}
	params = append(params, m.SlotOut.Parameters()...)
	return append(params, m.IntentOut.Parameters()...)
}

// Forward encodes a right-padded [batch][steps] input. mask holds 1 for real
// tokens and 0 for padding. It returns slot logits [steps*batch, slots] in
// time-major row order and intent logits [batch, intents].
func (m *JointModel) Forward(utterances [][]int, mask [][]int) (*Tensor, *Tensor, error) {
	if len(utterances) == 0 || len(utterances[0]) == 0 {
		return nil, nil, fmt.Errorf("JointModel.Forward received an empty batch")
	}
	if len(mask) != len(utterances) {
		return nil, nil, fmt.Errorf("mask has %d rows for %d utterances", len(mask), len(utterances))
	}
	batch, steps := len(utterances), len(utterances[0])

	inputs := make([]*Tensor, steps)
	masks := make([][]float64, steps)
	for t := 0; t < steps; t++ {
		ids := make([]int, batch)
		masks[t] = make([]float64, batch)
		for b := 0; b < batch; b++ {
			ids[b] = utterances[b][t]
			masks[t][b] = float64(mask[b][t])
		}
		x, err := m.Embedding.Forward(ids)
		if err != nil {
			return nil, nil, err
		}
		if x, err = m.dropout(x, m.Config.Dropout, m.rng); err != nil {
			return nil, nil, err
		}
		inputs[t] = x
	}

	outputs, last, err := m.Encoder.Forward(inputs, masks)
	if err != nil {
		return nil, nil, fmt.Errorf("encoder: %w", err)
	}
	summary := last.H
	if m.Reverse != nil {
		revOutputs, revLast, err := m.Reverse.Forward(inputs, masks)
		if err != nil {
			return nil, nil, fmt.Errorf("reverse encoder: %w", err)
		}
		for t := range outputs {
			if outputs[t], err = Concat([]*Tensor{outputs[t], revOutputs[t]}, 1); err != nil {
				return nil, nil, err
			}
		}
		if summary, err = Concat([]*Tensor{last.H, revLast.H}, 1); err != nil {
			return nil, nil, err
		}
	}

	hidden, err := Concat(outputs, 0)
	if err != nil {
		return nil, nil, err
	}
	if hidden, err = m.dropout(hidden, m.Config.Dropout, m.rng); err != nil {
		return nil, nil, err
	}
	slots, err := m.SlotOut.Forward(hidden)
	if err != nil {
		return nil, nil, fmt.Errorf("slot head: %w", err)
	}

	if summary, err = m.dropout(summary, m.Config.Dropout, m.rng); err != nil {
		return nil, nil, err
	}
	intents, err := m.IntentOut.Forward(summary)
	if err != nil {
		return nil, nil, fmt.Errorf("intent head: %w", err)
	}
	return slots, intents, nil
}

// Clone returns an independent deep copy of the model in evaluation mode.
func (m *JointModel) Clone() *JointModel {
	c := &JointModel{
		Config:    m.Config,
		Embedding: m.Embedding.Clone(),
		Encoder:   &Recurrent{Cell: m.Encoder.Cell.clone()},
		SlotOut:   m.SlotOut.Clone(),
		IntentOut: m.IntentOut.Clone(),
		rng:       m.rng,
	}
	if m.Reverse != nil {
		c.Reverse = &Recurrent{Cell: m.Reverse.Cell.clone(), Reverse: true}
	}
	c.Eval()
	return c
}
