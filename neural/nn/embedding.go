package nn

import (
	"fmt"

	"golang.org/x/exp/rand"

	. "github.com/golangast/nlutrain/neural/tensor"
)

// Embedding represents a token embedding layer. The row of PadID is kept at
// zero and never receives gradient.
type Embedding struct {
	mode
	VocabSize int
	DimModel  int
	PadID     int
	Weight    *Tensor
}

// NewEmbedding creates an Embedding with standard normal weights.
func NewEmbedding(vocabSize, dimModel, padID int, rng *rand.Rand) (*Embedding, error) {
	if vocabSize <= 0 || dimModel <= 0 {
		return nil, fmt.Errorf("invalid Embedding dimensions %dx%d", vocabSize, dimModel)
	}
	if padID >= vocabSize {
		return nil, fmt.Errorf("pad id %d outside vocabulary of size %d", padID, vocabSize)
	}
	weight := NewTensor([]int{vocabSize, dimModel}, nil, true)
	for i := range weight.Data {
		weight.Data[i] = rng.NormFloat64()
	}
	if padID >= 0 {
		for i := padID * dimModel; i < (padID+1)*dimModel; i++ {
			weight.Data[i] = 0
		}
	}
	return &Embedding{VocabSize: vocabSize, DimModel: dimModel, PadID: padID, Weight: weight}, nil
}

// Parameters returns all learnable parameters of the layer.
func (e *Embedding) Parameters() []*Tensor {
	return []*Tensor{e.Weight}
}

// Forward looks up one row per id and returns [len(ids), dim_model].
func (e *Embedding) Forward(ids []int) (*Tensor, error) {
	return EmbeddingLookup(e.param(e.Weight), ids, e.PadID)
}

// Clone returns an independent copy of the layer.
func (e *Embedding) Clone() *Embedding {
	return &Embedding{VocabSize: e.VocabSize, DimModel: e.DimModel, PadID: e.PadID, Weight: e.Weight.Clone()}
}
