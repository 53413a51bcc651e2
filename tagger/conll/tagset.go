package conll

import (
	"github.com/google/btree"
)

// TagSet is an ordered set of tag names.
type TagSet struct {
	tree *btree.BTreeG[string]
}

// NewTagSet creates a TagSet holding tags.
func NewTagSet(tags ...string) *TagSet {
	s := &TagSet{tree: btree.NewG(2, func(a, b string) bool { return a < b })}
	for _, t := range tags {
		s.Add(t)
	}
	return s
}

// TagsOf collects every tag used in the sequences.
func TagsOf(seqs [][]Token) *TagSet {
	s := NewTagSet()
	for _, seq := range seqs {
		for _, tok := range seq {
			s.Add(tok.Tag)
		}
	}
	return s
}

// Add inserts tag.
func (s *TagSet) Add(tag string) { s.tree.ReplaceOrInsert(tag) }

// Has reports whether tag is present.
func (s *TagSet) Has(tag string) bool { return s.tree.Has(tag) }

// Len returns the number of tags.
func (s *TagSet) Len() int { return s.tree.Len() }

// Tags returns the tags in ascending order.
func (s *TagSet) Tags() []string {
	out := make([]string, 0, s.tree.Len())
	s.tree.Ascend(func(tag string) bool {
		out = append(out, tag)
		return true
	})
	return out
}

// Difference returns the tags of s missing from other, in ascending order.
func (s *TagSet) Difference(other *TagSet) []string {
	var out []string
	s.tree.Ascend(func(tag string) bool {
		if !other.Has(tag) {
			out = append(out, tag)
		}
		return true
	})
	return out
}
