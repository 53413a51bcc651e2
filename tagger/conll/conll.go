// Package conll scores IOB slot tagging at the chunk level, the way the
// CoNLL-2000 conlleval script does. BIO and BIOES (IOBES) tags are accepted.
package conll

import (
	"strings"

	"github.com/pkg/errors"
)

// OTag marks tokens outside any chunk.
const OTag = "O"

var (
	// ErrSizeMismatch is returned when reference and hypothesis do not line up.
	ErrSizeMismatch = errors.New("conll: reference and hypothesis sizes differ")
	// ErrUnknownClass is returned when the hypothesis uses a tag the reference
	// never uses, or a tag that is not in IOB form.
	ErrUnknownClass = errors.New("conll: hypothesis tag not in reference")
)

// Token is a word with its tag.
type Token struct {
	Word string
	Tag  string
}

// Score holds precision, recall, F1 and the number of reference chunks.
type Score struct {
	Precision float64
	Recall    float64
	F         float64
	Support   int
}

// Results holds the overall chunk score and one score per chunk class.
type Results struct {
	Total   Score
	Classes map[string]Score
}

type counts struct {
	correct, hyp, ref int
}

func (c counts) score() Score {
	p := 1.0
	if c.hyp > 0 {
		p = float64(c.correct) / float64(c.hyp)
	}
	r := 0.0
	if c.ref > 0 {
		r = float64(c.correct) / float64(c.ref)
	}
	f := 0.0
	if p+r > 0 {
		f = 2 * p * r / (p + r)
	}
	return Score{Precision: p, Recall: r, F: f, Support: c.ref}
}

// parseIOB splits "B-city" into ("B", "city"). The outside tag has no class.
func parseIOB(tag string) (iob, class string, err error) {
	if tag == OTag {
		return OTag, "", nil
	}
	i := strings.IndexByte(tag, '-')
	if i < 0 {
		return "", "", errors.Wrapf(ErrUnknownClass, "malformed tag %q", tag)
	}
	return tag[:i], tag[i+1:], nil
}

func oneOf(s string, set ...string) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

func beginsChunk(class, iob, prevClass, prevIOB string) bool {
	switch {
	case oneOf(iob, "B", "S", "U", "[", "]"):
		return true
	case oneOf(iob, "E", "L") && oneOf(prevIOB, "E", "L", "S", "U"):
		return true
	case iob == "I" && oneOf(prevIOB, "E", "L", "S", "U", OTag):
		return true
	}
	return class != prevClass && iob != OTag && iob != "."
}

// endsChunk reports whether the chunk open at the previous token ends before
// the current one.
func endsChunk(class, iob, prevClass, prevIOB string) bool {
	switch {
	case oneOf(prevIOB, "E", "L", "S", "U", "[", "]"):
		return true
	case oneOf(iob, "B", "S", "U", OTag) && oneOf(prevIOB, "B", "I"):
		return true
	}
	return class != prevClass && prevIOB != OTag && prevIOB != "."
}

// Evaluate scores hyp against ref, one []Token per sequence. Both sides must
// have the same shape, and every hypothesis tag must occur in the reference.
func Evaluate(ref, hyp [][]Token) (Results, error) {
	if len(ref) != len(hyp) {
		return Results{}, errors.Wrapf(ErrSizeMismatch, "ref has %d sequences, hyp has %d", len(ref), len(hyp))
	}
	for i := range ref {
		if len(ref[i]) != len(hyp[i]) {
			return Results{}, errors.Wrapf(ErrSizeMismatch, "sequence %d: ref has %d tokens, hyp has %d", i, len(ref[i]), len(hyp[i]))
		}
	}
	if missing := TagsOf(hyp).Difference(TagsOf(ref)); len(missing) > 0 {
		return Results{}, errors.Wrapf(ErrUnknownClass, "%v", missing)
	}

	var total counts
	classes := make(map[string]*counts)
	class := func(name string) *counts {
		c, ok := classes[name]
		if !ok {
			c = &counts{}
			classes[name] = c
		}
		return c
	}

	for _, seq := range ref {
		for _, tok := range seq {
			if _, _, err := parseIOB(tok.Tag); err != nil {
				return Results{}, err
			}
		}
	}

	for s := range ref {
		prevRef, prevHyp := "", ""
		prevRefIOB, prevHypIOB := "", ""
		inCorrect := false
		for i := range ref[s] {
			refIOB, refClass, _ := parseIOB(ref[s][i].Tag)
			hypIOB, hypClass, _ := parseIOB(hyp[s][i].Tag)

			refEnd := endsChunk(refClass, refIOB, prevRef, prevRefIOB)
			hypEnd := endsChunk(hypClass, hypIOB, prevHyp, prevHypIOB)
			refBegin := beginsChunk(refClass, refIOB, prevRef, prevRefIOB)
			hypBegin := beginsChunk(hypClass, hypIOB, prevHyp, prevHypIOB)

			if inCorrect {
				if refEnd && hypEnd && prevHyp == prevRef {
					inCorrect = false
					total.correct++
					class(prevRef).correct++
				} else if refEnd != hypEnd || hypClass != refClass {
					inCorrect = false
				}
			}
			if refBegin && hypBegin && hypClass == refClass {
				inCorrect = true
			}
			if refBegin {
				total.ref++
				class(refClass).ref++
			}
			if hypBegin {
				total.hyp++
				class(hypClass).hyp++
			}

			prevRef, prevHyp = refClass, hypClass
			prevRefIOB, prevHypIOB = refIOB, hypIOB
		}
		if inCorrect {
			total.correct++
			class(prevRef).correct++
		}
	}

	res := Results{Total: total.score(), Classes: make(map[string]Score, len(classes))}
	for name, c := range classes {
		res.Classes[name] = c.score()
	}
	return res, nil
}
