// Package train runs the training and evaluation loops of the language model
// and of the joint intent and slot model.
package train

import (
	"github.com/pkg/errors"

	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/batch"
	"github.com/golangast/nlutrain/neural/tensor"
)

// lmCriteria returns the training (mean) and evaluation (sum) losses of the
// language model. Both skip padded targets.
func lmCriteria(padID int) (trainLoss, evalLoss nn.CrossEntropy) {
	return nn.CrossEntropy{IgnoreIndex: padID, Reduction: nn.ReductionMean},
		nn.CrossEntropy{IgnoreIndex: padID, Reduction: nn.ReductionSum}
}

// jointCriteria returns the slot loss, which skips padding, and the intent loss.
func jointCriteria(padID int) (slots, intents nn.CrossEntropy) {
	return nn.CrossEntropy{IgnoreIndex: padID, Reduction: nn.ReductionMean},
		nn.CrossEntropy{IgnoreIndex: nn.IgnoreNone, Reduction: nn.ReductionMean}
}

// step backpropagates loss, clips the global gradient norm and updates the
// parameters.
func step(loss *tensor.Tensor, opt nn.Optimizer, params []*tensor.Tensor, clip float64) error {
	if err := loss.Backward(tensor.Scalar(1)); err != nil {
		return errors.Wrap(err, "backward")
	}
	nn.ClipGradNorm(params, clip)
	opt.Step()
	return nil
}

// TrainLM runs one pass over data and returns the loss of every batch.
func TrainLM(data []batch.LMBatch, opt nn.Optimizer, model *nn.LanguageModel, clip float64) ([]float64, error) {
	model.Train()
	criterion, _ := lmCriteria(model.Config.PadID)
	params := model.Parameters()

	losses := make([]float64, 0, len(data))
	for i, b := range data {
		opt.ZeroGrad()
		logits, err := model.Forward(b.Source)
		if err != nil {
			return losses, errors.Wrapf(err, "batch %d", i)
		}
		loss, err := criterion.Forward(logits, nn.TimeMajor(b.Target))
		if err != nil {
			return losses, errors.Wrapf(err, "batch %d", i)
		}
		losses = append(losses, loss.Item())
		if err := step(loss, opt, params, clip); err != nil {
			return losses, errors.Wrapf(err, "batch %d", i)
		}
	}
	return losses, nil
}

// JointLoss adds the intent and slot losses with equal weight.
func JointLoss(intent, slot *tensor.Tensor) (*tensor.Tensor, error) {
	return intent.Add(slot)
}

// jointForward runs the model on b and returns both outputs with the joint loss.
func jointForward(model *nn.JointModel, b batch.JointBatch) (slots, intents, loss *tensor.Tensor, err error) {
	slotLoss, intentLoss := jointCriteria(model.Config.PadID)
	slots, intents, err = model.Forward(b.Utterances, b.Mask)
	if err != nil {
		return nil, nil, nil, err
	}
	li, err := intentLoss.Forward(intents, b.Intents)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "intent loss")
	}
	ls, err := slotLoss.Forward(slots, nn.TimeMajor(b.Slots))
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "slot loss")
	}
	loss, err = JointLoss(li, ls)
	if err != nil {
		return nil, nil, nil, err
	}
	return slots, intents, loss, nil
}

// TrainJoint runs one pass over data, optimizing the sum of the intent and
// slot losses, and returns the loss of every batch.
func TrainJoint(data []batch.JointBatch, opt nn.Optimizer, model *nn.JointModel, clip float64) ([]float64, error) {
	model.Train()
	params := model.Parameters()

	losses := make([]float64, 0, len(data))
	for i, b := range data {
		opt.ZeroGrad()
		_, _, loss, err := jointForward(model, b)
		if err != nil {
			return losses, errors.Wrapf(err, "batch %d", i)
		}
		losses = append(losses, loss.Item())
		if err := step(loss, opt, params, clip); err != nil {
			return losses, errors.Wrapf(err, "batch %d", i)
		}
	}
	return losses, nil
}
