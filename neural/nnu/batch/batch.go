// Package batch turns indexed datasets into right-padded mini-batches.
package batch

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"

	"github.com/golangast/nlutrain/neural/nnu/corpus"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
)

// LMSample is one sentence shifted by one position: Target[i] follows Source[i].
type LMSample struct {
	Source []int
	Target []int
}

// LMBatch holds [batch][steps] source and target ids padded with the pad id.
// NumTokens is the number of non-pad targets, the sum of Lengths.
type LMBatch struct {
	Source    [][]int
	Target    [][]int
	Lengths   []int
	NumTokens int
}

// JointSample is one encoded utterance with its slot tags and intent.
type JointSample struct {
	Utterance []int
	Slots     []int
	Intent    int
}

// JointBatch holds [batch][steps] word and slot ids padded with the pad id.
// Mask is 1 on real tokens and 0 on padding.
type JointBatch struct {
	Utterances [][]int
	Slots      [][]int
	Mask       [][]int
	Lengths    []int
	Intents    []int
}

// NewLMDataset encodes sentences that already end with the end-of-sentence
// token. Sentences shorter than two tokens carry no prediction and are skipped.
func NewLMDataset(lines [][]string, v *vocab.Vocabulary) ([]LMSample, error) {
	samples := make([]LMSample, 0, len(lines))
	for i, line := range lines {
		if len(line) < 2 {
			continue
		}
		ids, err := v.EncodeAll(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i)
		}
		samples = append(samples, LMSample{Source: ids[:len(ids)-1], Target: ids[1:]})
	}
	return samples, nil
}

// NewJointDataset encodes utterances with the mappings of lang.
func NewJointDataset(data []corpus.Utterance, lang *vocab.Lang) ([]JointSample, error) {
	samples := make([]JointSample, len(data))
	for i, u := range data {
		words, err := lang.Words.EncodeAll(u.Words())
		if err != nil {
			return nil, errors.Wrapf(err, "utterance %d", i)
		}
		slots, err := lang.Slots.EncodeAll(u.Tags())
		if err != nil {
			return nil, errors.Wrapf(err, "slots of utterance %d", i)
		}
		intent, err := lang.Intents.Encode(u.Intent)
		if err != nil {
			return nil, errors.Wrapf(err, "intent of utterance %d", i)
		}
		samples[i] = JointSample{Utterance: words, Slots: slots, Intent: intent}
	}
	return samples, nil
}

func pad(seqs [][]int, steps, padID int) [][]int {
	out := make([][]int, len(seqs))
	for i, s := range seqs {
		row := make([]int, steps)
		n := copy(row, s)
		for j := n; j < steps; j++ {
			row[j] = padID
		}
		out[i] = row
	}
	return out
}

// CollateLM pads samples to the longest one, longest first.
func CollateLM(samples []LMSample, padID int) LMBatch {
	sorted := append([]LMSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Source) > len(sorted[j].Source) })

	b := LMBatch{Lengths: make([]int, len(sorted))}
	sources := make([][]int, len(sorted))
	targets := make([][]int, len(sorted))
	steps := 0
	for i, s := range sorted {
		sources[i], targets[i] = s.Source, s.Target
		b.Lengths[i] = len(s.Target)
		b.NumTokens += len(s.Target)
		if len(s.Source) > steps {
			steps = len(s.Source)
		}
	}
	b.Source = pad(sources, steps, padID)
	b.Target = pad(targets, steps, padID)
	return b
}

// CollateJoint pads samples to the longest one, longest first, and builds the mask.
func CollateJoint(samples []JointSample, padID int) JointBatch {
	sorted := append([]JointSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i].Utterance) > len(sorted[j].Utterance) })

	b := JointBatch{
		Lengths: make([]int, len(sorted)),
		Intents: make([]int, len(sorted)),
		Mask:    make([][]int, len(sorted)),
	}
	utts := make([][]int, len(sorted))
	slots := make([][]int, len(sorted))
	steps := 0
	for i, s := range sorted {
		utts[i], slots[i] = s.Utterance, s.Slots
		b.Lengths[i] = len(s.Utterance)
		b.Intents[i] = s.Intent
		if len(s.Utterance) > steps {
			steps = len(s.Utterance)
		}
	}
	for i, n := range b.Lengths {
		b.Mask[i] = make([]int, steps)
		for j := 0; j < n; j++ {
			b.Mask[i][j] = 1
		}
	}
	b.Utterances = pad(utts, steps, padID)
	b.Slots = pad(slots, steps, padID)
	return b
}

// Loader cuts a dataset into batches, reshuffling on every call when it has
// a random source.
type Loader[S, B any] struct {
	Samples   []S
	BatchSize int
	Collate   func([]S) B
	rng       *rand.Rand
}

// NewLoader creates a Loader. A nil rng keeps the dataset order.
func NewLoader[S, B any](samples []S, batchSize int, collate func([]S) B, rng *rand.Rand) *Loader[S, B] {
	return &Loader[S, B]{Samples: samples, BatchSize: batchSize, Collate: collate, rng: rng}
}

// Batches returns one epoch worth of batches. The last batch may be smaller.
func (l *Loader[S, B]) Batches() []B {
	order := l.Samples
	if l.rng != nil {
		order = append([]S(nil), l.Samples...)
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	size := l.BatchSize
	if size <= 0 {
		size = len(order)
	}
	var out []B
	for start := 0; start < len(order); start += size {
		end := start + size
		if end > len(order) {
			end = len(order)
		}
		out = append(out, l.Collate(order[start:end]))
	}
	return out
}
