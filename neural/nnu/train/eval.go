package train

import (
	"log"
	"math"

	"github.com/pkg/errors"

	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/batch"
	"github.com/golangast/nlutrain/neural/nnu/calc"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
	"github.com/golangast/nlutrain/tagger/conll"
)

// Perplexity is exp(totalLoss / numTokens) for a summed negative log-likelihood.
func Perplexity(totalLoss float64, numTokens int) float64 {
	if numTokens <= 0 {
		return math.Inf(1)
	}
	return math.Exp(totalLoss / float64(numTokens))
}

// EvalLM scores data without tracking gradients. It returns the perplexity
// over all non-pad targets and the summed loss of every batch.
func EvalLM(data []batch.LMBatch, model *nn.LanguageModel) (float64, []float64, error) {
	model.Eval()
	_, criterion := lmCriteria(model.Config.PadID)

	losses := make([]float64, 0, len(data))
	total, tokens := 0.0, 0
	for i, b := range data {
		logits, err := model.Forward(b.Source)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "batch %d", i)
		}
		loss, err := criterion.Forward(logits, nn.TimeMajor(b.Target))
		if err != nil {
			return 0, nil, errors.Wrapf(err, "batch %d", i)
		}
		losses = append(losses, loss.Item())
		total += loss.Item()
		tokens += b.NumTokens
	}
	return Perplexity(total, tokens), losses, nil
}

// JointResult is the outcome of one evaluation pass of the joint model.
// RefSlots and HypSlots hold the aligned sequences that were scored.
type JointResult struct {
	Slots    conll.Results
	Intents  calc.Report
	Losses   []float64
	RefSlots [][]conll.Token
	HypSlots [][]conll.Token
}

// ValidLength counts the real tokens of one mask row.
func ValidLength(mask []int) int {
	n := 0
	for _, m := range mask {
		n += m
	}
	return n
}

// AlignSlots pairs words with reference and predicted tags for one padded
// sequence. Positions at or past length are cut first; positions whose
// reference tag is the pad tag are then dropped from both sides.
func AlignSlots(words, ref, hyp []string, length int) (refOut, hypOut []conll.Token) {
	if length > len(words) {
		length = len(words)
	}
	refOut = make([]conll.Token, 0, length)
	hypOut = make([]conll.Token, 0, length)
	for i := 0; i < length; i++ {
		if ref[i] == vocab.PadToken {
			continue
		}
		refOut = append(refOut, conll.Token{Word: words[i], Tag: ref[i]})
		hypOut = append(hypOut, conll.Token{Word: words[i], Tag: hyp[i]})
	}
	return refOut, hypOut
}

// EvalJoint scores data without tracking gradients. Slots are scored at the
// chunk level and intents with a classification report. A chunk scoring
// failure is logged and reported as a zero score rather than returned.
func EvalJoint(data []batch.JointBatch, model *nn.JointModel, lang *vocab.Lang) (*JointResult, error) {
	model.Eval()
	res := &JointResult{}
	var refIntents, hypIntents []string

	for i, b := range data {
		slots, intents, loss, err := jointForward(model, b)
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", i)
		}
		res.Losses = append(res.Losses, loss.Item())

		gold, err := lang.Intents.DecodeAll(b.Intents)
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", i)
		}
		predicted, err := lang.Intents.DecodeAll(intents.ArgmaxRows())
		if err != nil {
			return nil, errors.Wrapf(err, "batch %d", i)
		}
		refIntents = append(refIntents, gold...)
		hypIntents = append(hypIntents, predicted...)

		// Slot logits are time-major: row t*batch+s is sequence s at step t.
		tags := slots.ArgmaxRows()
		size := len(b.Utterances)
		for s := range b.Utterances {
			steps := len(b.Utterances[s])
			hypIDs := make([]int, steps)
			for t := 0; t < steps; t++ {
				hypIDs[t] = tags[t*size+s]
			}
			words, err := lang.Words.DecodeAll(b.Utterances[s])
			if err != nil {
				return nil, errors.Wrapf(err, "batch %d", i)
			}
			ref, err := lang.Slots.DecodeAll(b.Slots[s])
			if err != nil {
				return nil, errors.Wrapf(err, "batch %d", i)
			}
			hyp, err := lang.Slots.DecodeAll(hypIDs)
			if err != nil {
				return nil, errors.Wrapf(err, "batch %d", i)
			}
			r, h := AlignSlots(words, ref, hyp, ValidLength(b.Mask[s]))
			res.RefSlots = append(res.RefSlots, r)
			res.HypSlots = append(res.HypSlots, h)
		}
	}

	slotScores, err := conll.Evaluate(res.RefSlots, res.HypSlots)
	if err != nil {
		log.Printf("Warning: %v", err)
		log.Printf("tags predicted but never in reference: %v", conll.TagsOf(res.HypSlots).Difference(conll.TagsOf(res.RefSlots)))
		slotScores = conll.Results{Classes: map[string]conll.Score{}}
	}
	res.Slots = slotScores

	report, err := calc.ClassificationReport(refIntents, hypIntents)
	if err != nil {
		return nil, errors.Wrap(err, "intent report")
	}
	res.Intents = report
	return res, nil
}
