package batch

import (
	"reflect"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/golangast/nlutrain/neural/nnu/corpus"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
)

func TestCollateLM(t *testing.T) {
	lines := [][]string{
		{"a", "b", vocab.EOSToken},
		{"a", "b", "c", "d", vocab.EOSToken},
		{"x"},
	}
	v := vocab.NewLMVocabulary(lines)
	samples, err := NewLMDataset(lines, v)
	if err != nil {
		t.Fatalf("NewLMDataset: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected the one-token line to be skipped, got %d samples", len(samples))
	}

	b := CollateLM(samples, 0)
	// ids: <pad>=0 <eos>=1 a=2 b=3 c=4 d=5
	expectedSource := [][]int{{2, 3, 4, 5}, {2, 3, 0, 0}}
	expectedTarget := [][]int{{3, 4, 5, 1}, {3, 1, 0, 0}}
	if !reflect.DeepEqual(b.Source, expectedSource) {
		t.Errorf("Source = %v, expected %v", b.Source, expectedSource)
	}
	if !reflect.DeepEqual(b.Target, expectedTarget) {
		t.Errorf("Target = %v, expected %v", b.Target, expectedTarget)
	}
	if b.NumTokens != 6 || !reflect.DeepEqual(b.Lengths, []int{4, 2}) {
		t.Errorf("NumTokens = %d, Lengths = %v", b.NumTokens, b.Lengths)
	}

	nonPad := 0
	for _, row := range b.Target {
		for _, id := range row {
			if id != 0 {
				nonPad++
			}
		}
	}
	if nonPad != b.NumTokens {
		t.Errorf("non-pad targets = %d, NumTokens = %d", nonPad, b.NumTokens)
	}
}

func TestCollateJoint(t *testing.T) {
	data := []corpus.Utterance{
		{Utterance: "to boston", Slots: "O B-city", Intent: "flight"},
		{Utterance: "cheap flights to denver", Slots: "B-cost O O B-city", Intent: "airfare"},
	}
	intents, slots := corpus.Labels(data)
	lang := vocab.NewLang(corpus.Sentences(data), 0, intents, slots)
	samples, err := NewJointDataset(data, lang)
	if err != nil {
		t.Fatalf("NewJointDataset: %v", err)
	}

	b := CollateJoint(samples, lang.PadID())
	if !reflect.DeepEqual(b.Lengths, []int{4, 2}) {
		t.Errorf("Lengths = %v, expected longest first", b.Lengths)
	}
	expectedMask := [][]int{{1, 1, 1, 1}, {1, 1, 0, 0}}
	if !reflect.DeepEqual(b.Mask, expectedMask) {
		t.Errorf("Mask = %v, expected %v", b.Mask, expectedMask)
	}
	if b.Slots[1][2] != 0 || b.Utterances[1][3] != 0 {
		t.Errorf("short row is not padded: %v %v", b.Utterances[1], b.Slots[1])
	}
	if b.Intents[0] != lang.Intents.MustEncode("airfare") {
		t.Errorf("intent of the longest utterance = %d", b.Intents[0])
	}
}

func TestLoader(t *testing.T) {
	samples := []int{1, 2, 3, 4, 5}
	sum := func(xs []int) int {
		total := 0
		for _, x := range xs {
			total += x
		}
		return total
	}

	fixed := NewLoader(samples, 2, sum, nil)
	if got := fixed.Batches(); !reflect.DeepEqual(got, []int{3, 7, 5}) {
		t.Errorf("Batches() = %v, expected [3 7 5]", got)
	}

	shuffled := NewLoader(samples, 5, sum, rand.New(rand.NewSource(1)))
	if got := shuffled.Batches(); len(got) != 1 || got[0] != 15 {
		t.Errorf("shuffled Batches() = %v, expected [15]", got)
	}
	if !reflect.DeepEqual(samples, []int{1, 2, 3, 4, 5}) {
		t.Errorf("shuffling modified the dataset: %v", samples)
	}
}
