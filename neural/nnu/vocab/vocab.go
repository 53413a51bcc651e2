// Package vocab maps tokens and labels to integer ids and back.
package vocab

import (
	"github.com/pkg/errors"
)

var (
	// ErrFrozen is returned when a frozen vocabulary would have to grow.
	ErrFrozen = errors.New("vocab: vocabulary is frozen")
	// ErrUnknownLabel is returned for a word or id the vocabulary does not hold
	// and cannot map to an unknown token.
	ErrUnknownLabel = errors.New("vocab: unknown label")
)

// Vocabulary represents the mapping between words and token IDs.
// Ids are dense and assigned in insertion order, reserved tokens first.
type Vocabulary struct {
	WordToToken    map[string]int
	TokenToWord    []string
	UnknownTokenID int // -1 when out-of-vocabulary words are an error
	Frozen         bool
}

// NewVocabulary creates a Vocabulary holding the reserved tokens in order.
func NewVocabulary(reserved ...string) *Vocabulary {
	v := &Vocabulary{
		WordToToken:    make(map[string]int),
		UnknownTokenID: -1,
	}
	for _, w := range reserved {
		v.add(w)
	}
	return v
}

func (v *Vocabulary) add(word string) int {
	if id, ok := v.WordToToken[word]; ok {
		return id
	}
	id := len(v.TokenToWord)
	v.WordToToken[word] = id
	v.TokenToWord = append(v.TokenToWord, word)
	return id
}

// Add returns the id of word, assigning the next free id if it is new.
func (v *Vocabulary) Add(word string) (int, error) {
	if id, ok := v.WordToToken[word]; ok {
		return id, nil
	}
	if v.Frozen {
		return 0, errors.Wrapf(ErrFrozen, "cannot add %q", word)
	}
	return v.add(word), nil
}

// SetUnknown makes word the fallback for out-of-vocabulary lookups.
// The word must already be present.
func (v *Vocabulary) SetUnknown(word string) error {
	id, ok := v.WordToToken[word]
	if !ok {
		return errors.Wrapf(ErrUnknownLabel, "unknown token %q", word)
	}
	v.UnknownTokenID = id
	return nil
}

// Freeze stops the vocabulary from growing.
func (v *Vocabulary) Freeze() { v.Frozen = true }

// Size returns the number of entries.
func (v *Vocabulary) Size() int { return len(v.TokenToWord) }

// Has reports whether word has its own id.
func (v *Vocabulary) Has(word string) bool {
	_, ok := v.WordToToken[word]
	return ok
}

// Encode returns the id of word, falling back to the unknown token if one is set.
func (v *Vocabulary) Encode(word string) (int, error) {
	if id, ok := v.WordToToken[word]; ok {
		return id, nil
	}
	if v.UnknownTokenID >= 0 {
		return v.UnknownTokenID, nil
	}
	return 0, errors.Wrapf(ErrUnknownLabel, "word %q", word)
}

// MustEncode is Encode for words known to be present, e.g. reserved tokens.
func (v *Vocabulary) MustEncode(word string) int {
	id, err := v.Encode(word)
	if err != nil {
		panic(err)
	}
	return id
}

// EncodeAll encodes a sequence of words.
func (v *Vocabulary) EncodeAll(words []string) ([]int, error) {
	ids := make([]int, len(words))
	for i, w := range words {
		id, err := v.Encode(w)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Decode returns the word for id.
func (v *Vocabulary) Decode(id int) (string, error) {
	if id < 0 || id >= len(v.TokenToWord) {
		return "", errors.Wrapf(ErrUnknownLabel, "id %d outside vocabulary of size %d", id, len(v.TokenToWord))
	}
	return v.TokenToWord[id], nil
}

// DecodeAll decodes a sequence of ids.
func (v *Vocabulary) DecodeAll(ids []int) ([]string, error) {
	words := make([]string, len(ids))
	for i, id := range ids {
		w, err := v.Decode(id)
		if err != nil {
			return nil, err
		}
		words[i] = w
	}
	return words, nil
}

// Build creates a frozen vocabulary from training sentences. Reserved tokens
// come first, then every word seen more than cutoff times in order of first
// appearance.
func Build(sentences [][]string, cutoff int, reserved ...string) *Vocabulary {
	counts := make(map[string]int)
	for _, s := range sentences {
		for _, w := range s {
			counts[w]++
		}
	}
	v := NewVocabulary(reserved...)
	for _, s := range sentences {
		for _, w := range s {
			if counts[w] > cutoff {
				v.add(w)
			}
		}
	}
	v.Freeze()
	return v
}
