// Package corpus reads the Penn Treebank language-modeling files and the
// ATIS intent and slot dataset.
package corpus

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// EOS is appended to every language-modeling line.
const EOS = "<eos>"

// ReadLines reads a whitespace-tokenized corpus, one sentence per line, and
// appends EOS to each line.
func ReadLines(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open corpus")
	}
	defer f.Close()
	lines, err := ParseLines(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return lines, nil
}

// ParseLines is ReadLines over an io.Reader. Blank lines are skipped.
func ParseLines(r io.Reader) ([][]string, error) {
	var lines [][]string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}
		lines = append(lines, append(words, EOS))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// Utterance is one ATIS example. Slots holds one IOB tag per word of the
// utterance, separated by spaces.
type Utterance struct {
	Utterance string `json:"utterance"`
	Slots     string `json:"slots"`
	Intent    string `json:"intent"`
}

// Words splits the utterance into tokens.
func (u Utterance) Words() []string { return strings.Fields(u.Utterance) }

// Tags splits the slot string into tags.
func (u Utterance) Tags() []string { return strings.Fields(u.Slots) }

// LoadATIS reads a JSON array of utterances and checks that every utterance
// has exactly one tag per word.
func LoadATIS(path string) ([]Utterance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer f.Close()
	data, err := DecodeATIS(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return data, nil
}

// DecodeATIS is LoadATIS over an io.Reader.
func DecodeATIS(r io.Reader) ([]Utterance, error) {
	var data []Utterance
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return nil, errors.Wrap(err, "decode utterances")
	}
	for i, u := range data {
		if w, s := len(u.Words()), len(u.Tags()); w != s {
			return nil, errors.Errorf("utterance %d has %d words but %d slot tags", i, w, s)
		}
	}
	return data, nil
}

// Sentences returns the tokenized utterances.
func Sentences(data []Utterance) [][]string {
	out := make([][]string, len(data))
	for i, u := range data {
		out[i] = u.Words()
	}
	return out
}

// Labels collects every intent and slot tag that appears in the given splits.
func Labels(splits ...[]Utterance) (intents, slots []string) {
	for _, split := range splits {
		for _, u := range split {
			intents = append(intents, u.Intent)
			slots = append(slots, u.Tags()...)
		}
	}
	return intents, slots
}
