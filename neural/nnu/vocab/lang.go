package vocab

import (
	"sort"
)

// Reserved tokens.
const (
	PadToken   = "pad"
	UnkToken   = "unk"
	LMPadToken = "<pad>"
	EOSToken   = "<eos>"
)

// NewLMVocabulary builds the language-model vocabulary from training lines.
// <pad> gets id 0 and <eos> id 1.
func NewLMVocabulary(lines [][]string) *Vocabulary {
	return Build(lines, 0, LMPadToken, EOSToken)
}

// Lang holds the word, slot and intent mappings of the joint task.
type Lang struct {
	Words   *Vocabulary
	Slots   *Vocabulary
	Intents *Vocabulary
}

// NewLang builds frozen mappings. Words come from training utterances only and
// include pad (id 0) and unk (id 1); words seen cutoff times or fewer map to
// unk. The slot mapping reserves pad at id 0. Label inventories are sorted so
// ids do not depend on input order.
func NewLang(words [][]string, cutoff int, intents, slots []string) *Lang {
	w := Build(words, cutoff, PadToken, UnkToken)
	w.UnknownTokenID = w.WordToToken[UnkToken]

	s := NewVocabulary(PadToken)
	for _, tag := range sortedSet(slots) {
		s.add(tag)
	}
	s.Freeze()

	i := NewVocabulary()
	for _, intent := range sortedSet(intents) {
		i.add(intent)
	}
	i.Freeze()

	return &Lang{Words: w, Slots: s, Intents: i}
}

// PadID returns the id shared by padded words and padded slot tags.
func (l *Lang) PadID() int { return l.Words.WordToToken[PadToken] }

func sortedSet(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if it == PadToken || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}
