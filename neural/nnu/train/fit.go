package train

import (
	"log"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/batch"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
)

// EpochStats summarizes one evaluated epoch. Metric is the dev perplexity for
// the language model and the dev slot F1 for the joint model.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	DevLoss   float64
	Metric    float64
	Improved  bool
}

// FitOptions controls the epoch loop shared by both experiments.
type FitOptions struct {
	Epochs    int
	EvalEvery int // evaluate on epochs divisible by EvalEvery; <= 1 means every epoch
	Patience  int
	Clip      float64
	OnEpoch   func(EpochStats)
}

func (o FitOptions) due(epoch int) bool {
	return o.EvalEvery <= 1 || epoch%o.EvalEvery == 0
}

func (o FitOptions) report(st EpochStats) {
	if o.OnEpoch != nil {
		o.OnEpoch(st)
	}
}

var (
	// ErrNoEvaluation is returned when the epoch loop ended before any dev pass.
	ErrNoEvaluation = errors.New("train: no epoch was evaluated")
	// ErrNoImprovement is returned when no dev metric was ever finite, e.g. an
	// empty dev set or a diverged model, so there is no best model to return.
	ErrNoImprovement = errors.New("train: no dev evaluation produced a best model")
)

// FitLM trains for up to opts.Epochs epochs, evaluating dev perplexity and
// stopping early when it stops improving. trainData is called once per epoch
// so the caller can reshuffle. It returns a snapshot of the best model.
func FitLM(opts FitOptions, trainData func() []batch.LMBatch, dev []batch.LMBatch, opt nn.Optimizer, model *nn.LanguageModel) (*nn.LanguageModel, []EpochStats, error) {
	stopper := NewEarlyStopper(opts.Patience, (*nn.LanguageModel).Clone)
	var history []EpochStats
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		losses, err := TrainLM(trainData(), opt, model, opts.Clip)
		if err != nil {
			return nil, history, errors.Wrapf(err, "epoch %d", epoch)
		}
		if !opts.due(epoch) {
			continue
		}
		ppl, devLosses, err := EvalLM(dev, model)
		if err != nil {
			return nil, history, errors.Wrapf(err, "epoch %d dev", epoch)
		}
		improved, stop := stopper.Observe(ppl, model)
		st := EpochStats{
			Epoch:     epoch,
			TrainLoss: stat.Mean(losses, nil),
			DevLoss:   stat.Mean(devLosses, nil),
			Metric:    ppl,
			Improved:  improved,
		}
		history = append(history, st)
		log.Printf("epoch %d: train loss %.4f, dev PPL %.2f", epoch, st.TrainLoss, ppl)
		opts.report(st)
		if stop {
			log.Printf("no improvement for %d evaluations, stopping at epoch %d", opts.Patience, epoch)
			break
		}
	}
	if len(history) == 0 {
		return nil, nil, ErrNoEvaluation
	}
	if stopper.BestModel == nil {
		return nil, history, errors.Wrapf(ErrNoImprovement, "dev perplexity stayed at %v", history[len(history)-1].Metric)
	}
	return stopper.BestModel, history, nil
}

// FitJoint trains the joint model, evaluating dev slot F1 on due epochs and
// stopping early when it stops improving. It returns a snapshot of the model
// with the best dev slot F1.
func FitJoint(opts FitOptions, trainData func() []batch.JointBatch, dev []batch.JointBatch, opt nn.Optimizer, model *nn.JointModel, lang *vocab.Lang) (*nn.JointModel, []EpochStats, error) {
	// The stopper minimizes, so it watches the negated F1.
	stopper := NewEarlyStopper(opts.Patience, (*nn.JointModel).Clone)
	var history []EpochStats
	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		losses, err := TrainJoint(trainData(), opt, model, opts.Clip)
		if err != nil {
			return nil, history, errors.Wrapf(err, "epoch %d", epoch)
		}
		if !opts.due(epoch) {
			continue
		}
		res, err := EvalJoint(dev, model, lang)
		if err != nil {
			return nil, history, errors.Wrapf(err, "epoch %d dev", epoch)
		}
		f1 := res.Slots.Total.F
		improved, stop := stopper.Observe(-f1, model)
		st := EpochStats{
			Epoch:     epoch,
			TrainLoss: stat.Mean(losses, nil),
			DevLoss:   stat.Mean(res.Losses, nil),
			Metric:    f1,
			Improved:  improved,
		}
		history = append(history, st)
		log.Printf("epoch %d: train loss %.4f, dev slot F1 %.4f, dev intent acc %.4f", epoch, st.TrainLoss, f1, res.Intents.Accuracy)
		opts.report(st)
		if stop {
			log.Printf("no improvement for %d evaluations, stopping at epoch %d", opts.Patience, epoch)
			break
		}
	}
	if len(history) == 0 {
		return nil, nil, ErrNoEvaluation
	}
	if stopper.BestModel == nil {
		return nil, history, errors.Wrapf(ErrNoImprovement, "dev slot F1 stayed at %v", history[len(history)-1].Metric)
	}
	return stopper.BestModel, history, nil
}
