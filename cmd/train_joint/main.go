// Command train_joint trains the joint intent and slot model on ATIS several
// times and reports the mean and standard deviation of the test slot F1 and
// intent accuracy over the runs.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/golangast/nlutrain/internal/sqlite_db"
	"github.com/golangast/nlutrain/neural/nn"
	"github.com/golangast/nlutrain/neural/nnu/batch"
	"github.com/golangast/nlutrain/neural/nnu/config"
	"github.com/golangast/nlutrain/neural/nnu/corpus"
	"github.com/golangast/nlutrain/neural/nnu/gobs"
	"github.com/golangast/nlutrain/neural/nnu/lossplot"
	"github.com/golangast/nlutrain/neural/nnu/train"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
)

var (
	configPath    = flag.String("config", "", "Path to a YAML config file")
	runs          = flag.Int("runs", 0, "Number of independent training runs")
	epochs        = flag.Int("epochs", 0, "Maximum number of epochs per run")
	learningRate  = flag.Float64("lr", 0, "Learning rate")
	bidirectional = flag.Bool("bidirectional", false, "Use a bidirectional encoder")
	verbose       = flag.Bool("verbose", false, "Log aligned slot sequences and the intent report")
)

func loadConfig() (config.JointConfig, error) {
	cfg, err := config.LoadJoint(*configPath)
	if err != nil {
		return cfg, errors.Wrap(err, "load config")
	}
	if *runs > 0 {
		cfg.Runs = *runs
	}
	if *epochs > 0 {
		cfg.Epochs = *epochs
	}
	if *learningRate > 0 {
		cfg.LearningRate = *learningRate
	}
	if *bidirectional {
		cfg.Bidirectional = true
	}
	return cfg, errors.Wrap(cfg.Validate(), "invalid config")
}

// runResult is the test outcome of one run.
type runResult struct {
	model    *nn.JointModel
	slotF1   float64
	accuracy float64
	epochs   []train.EpochStats
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := run(); err != nil {
		log.Fatalf("train_joint: %v", err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	trainRaw, err := corpus.LoadATIS(cfg.TrainFile)
	if err != nil {
		return errors.Wrap(err, "load training data")
	}
	testRaw, err := corpus.LoadATIS(cfg.TestFile)
	if err != nil {
		return errors.Wrap(err, "load test data")
	}
	trainRaw, devRaw := corpus.StratifiedSplit(trainRaw, cfg.DevFraction, rng)
	log.Printf("Train: %d, dev: %d, test: %d", len(trainRaw), len(devRaw), len(testRaw))

	intents, slots := corpus.Labels(trainRaw, devRaw, testRaw)
	lang := vocab.NewLang(corpus.Sentences(trainRaw), cfg.Cutoff, intents, slots)
	log.Printf("Words: %d, slots: %d, intents: %d", lang.Words.Size(), lang.Slots.Size(), lang.Intents.Size())

	trainSet, err := batch.NewJointDataset(trainRaw, lang)
	if err != nil {
		return errors.Wrap(err, "index training data")
	}
	devSet, err := batch.NewJointDataset(devRaw, lang)
	if err != nil {
		return errors.Wrap(err, "index dev data")
	}
	testSet, err := batch.NewJointDataset(testRaw, lang)
	if err != nil {
		return errors.Wrap(err, "index test data")
	}

	padID := lang.PadID()
	collate := func(s []batch.JointSample) batch.JointBatch { return batch.CollateJoint(s, padID) }
	trainLoader := batch.NewLoader(trainSet, cfg.TrainBatch, collate, rng)
	dev := batch.NewLoader(devSet, cfg.EvalBatch, collate, nil).Batches()
	test := batch.NewLoader(testSet, cfg.EvalBatch, collate, nil).Batches()

	db, runID := startRun(cfg)
	if db != nil {
		defer db.Close()
	}

	var results []runResult
	for r := 1; r <= cfg.Runs; r++ {
		res, err := fit(cfg, lang, trainLoader.Batches, dev, test, rng)
		if err != nil {
			return errors.Wrapf(err, "run %d", r)
		}
		log.Printf("Run %d: slot F1 %.4f, intent accuracy %.4f", r, res.slotF1, res.accuracy)
		results = append(results, res)
	}

	f1s := make([]float64, len(results))
	accs := make([]float64, len(results))
	best := 0
	for i, res := range results {
		f1s[i] = res.slotF1
		accs[i] = res.accuracy
		if res.slotF1 > results[best].slotF1 {
			best = i
		}
	}
	f1Mean, f1Std := meanStdDev(f1s)
	accMean, accStd := meanStdDev(accs)
	fmt.Printf("Slot F1: %.3f +- %.3f\n", f1Mean, f1Std)
	fmt.Printf("Intent Acc: %.3f +- %.3f\n", accMean, accStd)

	winner := results[best]
	if db != nil {
		for _, st := range winner.epochs {
			if err := sqlite_db.SaveEpoch(db, runID, sqlite_db.Epoch(st)); err != nil {
				log.Printf("Failed to record epoch: %v", err)
			}
		}
		if err := sqlite_db.FinishRun(db, runID, f1Mean); err != nil {
			log.Printf("Failed to record test F1: %v", err)
		}
	}
	if path := cfg.Output.Checkpoint; path != "" {
		c := &gobs.JointCheckpoint{Model: winner.model, Lang: lang, SlotF1: winner.slotF1, Accuracy: winner.accuracy}
		if err := gobs.SaveJoint(path, c); err != nil {
			return errors.Wrap(err, "save model")
		}
		log.Printf("Model saved to %s", path)
	}
	if path := cfg.Output.Plot; path != "" {
		plotEpochs(path, winner.epochs)
	}
	fmt.Println("Training complete.")
	return nil
}

// fit trains one freshly initialised model and scores its best snapshot on test.
func fit(cfg config.JointConfig, lang *vocab.Lang, trainData func() []batch.JointBatch, dev, test []batch.JointBatch, rng *rand.Rand) (runResult, error) {
	model, err := nn.NewJointModel(nn.JointModelConfig{
		EmbeddingSize: cfg.EmbeddingSize,
		HiddenSize:    cfg.HiddenSize,
		VocabSize:     lang.Words.Size(),
		NumSlots:      lang.Slots.Size(),
		NumIntents:    lang.Intents.Size(),
		PadID:         lang.PadID(),
		Bidirectional: cfg.Bidirectional,
		Dropout:       cfg.Dropout,
	}, rng)
	if err != nil {
		return runResult{}, errors.Wrap(err, "create model")
	}
	opt, err := nn.NewOptimizer(cfg.Optimizer, model.Parameters(), cfg.LearningRate, cfg.WeightDecay)
	if err != nil {
		return runResult{}, errors.Wrap(err, "create optimizer")
	}
	opts := train.FitOptions{
		Epochs:    cfg.Epochs,
		EvalEvery: cfg.EvalEvery,
		Patience:  cfg.Patience,
		Clip:      cfg.Clip,
	}
	best, history, err := train.FitJoint(opts, trainData, dev, opt, model, lang)
	if err != nil {
		return runResult{}, errors.Wrap(err, "training")
	}
	res, err := train.EvalJoint(test, best, lang)
	if err != nil {
		return runResult{}, errors.Wrap(err, "test evaluation")
	}
	if *verbose {
		if len(res.RefSlots) > 0 {
			log.Printf("ref %s\nhyp %s", spew.Sdump(res.RefSlots[0]), spew.Sdump(res.HypSlots[0]))
		}
		log.Printf("Intent report:\n%s", res.Intents)
	}
	return runResult{model: best, slotF1: res.Slots.Total.F, accuracy: res.Intents.Accuracy, epochs: history}, nil
}

// meanStdDev reports a zero deviation for a single run.
func meanStdDev(xs []float64) (mean, std float64) {
	if len(xs) < 2 {
		return stat.Mean(xs, nil), 0
	}
	return stat.MeanStdDev(xs, nil)
}

func plotEpochs(path string, history []train.EpochStats) {
	var sampled []int
	var trainLosses, devLosses []float64
	for _, st := range history {
		sampled = append(sampled, st.Epoch)
		trainLosses = append(trainLosses, st.TrainLoss)
		devLosses = append(devLosses, st.DevLoss)
	}
	err := lossplot.Save(path, "joint intent and slot model", sampled,
		lossplot.Curve{Name: "train", Values: trainLosses},
		lossplot.Curve{Name: "dev", Values: devLosses},
	)
	if err != nil {
		log.Printf("Failed to plot losses: %v", err)
	}
}

// startRun opens the run history when one is configured. Failing to record
// history is logged and does not stop training.
func startRun(cfg config.JointConfig) (*sql.DB, int64) {
	if cfg.Output.History == "" {
		return nil, 0
	}
	db, err := sqlite_db.InitDB(cfg.Output.History)
	if err != nil {
		log.Printf("Run history disabled: %v", err)
		return nil, 0
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		log.Printf("Failed to serialize config: %v", err)
	}
	id, err := sqlite_db.StartRun(db, "joint", string(raw))
	if err != nil {
		log.Printf("Run history disabled: %v", err)
		db.Close()
		return nil, 0
	}
	return db, id
}
