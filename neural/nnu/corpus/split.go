package corpus

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
)

// StratifiedSplit moves a fraction of every intent's examples into a
// development split. Intents with a single example stay in train. Output order
// follows intent name and then the shuffled order within each intent, so a
// fixed seed reproduces the split.
func StratifiedSplit(data []Utterance, fraction float64, rng *rand.Rand) (train, dev []Utterance) {
	byIntent := make(map[string][]Utterance)
	for _, u := range data {
		byIntent[u.Intent] = append(byIntent[u.Intent], u)
	}
	intents := make([]string, 0, len(byIntent))
	for intent := range byIntent {
		intents = append(intents, intent)
	}
	sort.Strings(intents)

	for _, intent := range intents {
		group := byIntent[intent]
		if len(group) < 2 {
			train = append(train, group...)
			continue
		}
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })
		n := int(math.Round(fraction * float64(len(group))))
		if n >= len(group) {
			n = len(group) - 1
		}
		dev = append(dev, group[:n]...)
		train = append(train, group[n:]...)
	}
	return train, dev
}
