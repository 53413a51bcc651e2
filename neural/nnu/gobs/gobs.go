// Package gobs handles saving and loading model checkpoints using the gob encoding.
// Every file starts with a header naming the checkpoint kind and its format version.
package gobs

import (
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/mod/semver"

	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
)

// FormatVersion is written into every checkpoint. Files with a different
// major version or a newer minor version are rejected.
const FormatVersion = "v1.0.0"

// ErrIncompatibleFormat is returned for checkpoints this build cannot read.
var ErrIncompatibleFormat = errors.New("gobs: incompatible checkpoint format")

// Header precedes the payload of every checkpoint.
type Header struct {
	Format string
	Kind   string
}

// LMCheckpoint is the best language model of a run with its vocabulary.
type LMCheckpoint struct {
	Model      *nn.LanguageModel
	Vocab      *vocab.Vocabulary
	Perplexity float64
}

// JointCheckpoint is the best joint model of a run with its mappings.
type JointCheckpoint struct {
	Model    *nn.JointModel
	Lang     *vocab.Lang
	SlotF1   float64
	Accuracy float64
}

// Checkpoint kinds recorded in Header.Kind.
const (
	KindLM    = "lm"
	KindJoint = "joint"
)

func save(filePath, kind string, payload interface{}) error {
	if dir := filepath.Dir(filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	file, err := os.Create(filePath)
	if err != nil {
		return errors.Wrap(err, "create checkpoint")
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(Header{Format: FormatVersion, Kind: kind}); err != nil {
		return errors.Wrap(err, "encode header")
	}
	if err := encoder.Encode(payload); err != nil {
		return errors.Wrap(err, "encode checkpoint")
	}
	return file.Close()
}

func load(filePath, kind string, payload interface{}) error {
	file, err := os.Open(filePath)
	if err != nil {
		return errors.Wrap(err, "open checkpoint")
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	var h Header
	if err := decoder.Decode(&h); err != nil {
		return errors.Wrap(err, "decode header")
	}
	if err := Compatible(h); err != nil {
		return errors.Wrap(err, filePath)
	}
	if h.Kind != kind {
		return errors.Wrapf(ErrIncompatibleFormat, "%s holds a %q checkpoint, expected %q", filePath, h.Kind, kind)
	}
	if err := decoder.Decode(payload); err != nil {
		return errors.Wrap(err, "decode checkpoint")
	}
	return nil
}

// ReadHeader reads only the header of a checkpoint, e.g. to find its kind.
func ReadHeader(filePath string) (Header, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Header{}, errors.Wrap(err, "open checkpoint")
	}
	defer file.Close()
	var h Header
	if err := gob.NewDecoder(file).Decode(&h); err != nil {
		return Header{}, errors.Wrap(err, "decode header")
	}
	return h, nil
}

// Compatible reports whether a checkpoint with header h can be read.
func Compatible(h Header) error {
	if !semver.IsValid(h.Format) {
		return errors.Wrapf(ErrIncompatibleFormat, "invalid format version %q", h.Format)
	}
	if semver.Major(h.Format) != semver.Major(FormatVersion) || semver.Compare(h.Format, FormatVersion) > 0 {
		return errors.Wrapf(ErrIncompatibleFormat, "format %s, this build reads %s", h.Format, FormatVersion)
	}
	return nil
}

// SaveLM writes a language-model checkpoint.
func SaveLM(filePath string, c *LMCheckpoint) error { return save(filePath, KindLM, c) }

// LoadLM reads a language-model checkpoint. The model comes back in evaluation mode.
func LoadLM(filePath string) (*LMCheckpoint, error) {
	c := new(LMCheckpoint)
	if err := load(filePath, KindLM, c); err != nil {
		return nil, err
	}
	c.Model.Eval()
	return c, nil
}

// SaveJoint writes a joint-model checkpoint.
func SaveJoint(filePath string, c *JointCheckpoint) error { return save(filePath, KindJoint, c) }

// LoadJoint reads a joint-model checkpoint. The model comes back in evaluation mode.
func LoadJoint(filePath string) (*JointCheckpoint, error) {
	c := new(JointCheckpoint)
	if err := load(filePath, KindJoint, c); err != nil {
		return nil, err
	}
	c.Model.Eval()
	return c, nil
}
