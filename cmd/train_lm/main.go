// Command train_lm trains a word-level recurrent language model on the Penn
// Treebank, stops early on dev perplexity and reports the test perplexity of
// the best snapshot.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
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
	configPath   = flag.String("config", "", "Path to a YAML config file")
	cell         = flag.String("cell", "", "Recurrent cell: rnn or lstm")
	epochs       = flag.Int("epochs", 0, "Number of training epochs")
	learningRate = flag.Float64("lr", 0, "Learning rate")
	optimizer    = flag.String("optimizer", "", "Optimizer: sgd, adam or adamw")
	verbose      = flag.Bool("verbose", false, "Log batch shapes and other diagnostics")
)

func loadConfig() (config.LMConfig, error) {
	cfg, err := config.LoadLM(*configPath)
	if err != nil {
		return cfg, errors.Wrap(err, "load config")
	}
	if *cell != "" {
		cfg.Cell = *cell
	}
	if *epochs > 0 {
		cfg.Epochs = *epochs
	}
	if *learningRate > 0 {
		cfg.LearningRate = *learningRate
	}
	if *optimizer != "" {
		cfg.Optimizer = *optimizer
	}
	return cfg, errors.Wrap(cfg.Validate(), "invalid config")
}

func readSplit(path string, v *vocab.Vocabulary) ([]batch.LMSample, error) {
	lines, err := corpus.ReadLines(path)
	if err != nil {
		return nil, errors.Wrap(err, "read corpus")
	}
	samples, err := batch.NewLMDataset(lines, v)
	if err != nil {
		return nil, errors.Wrapf(err, "index %s", path)
	}
	return samples, nil
}

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := run(); err != nil {
		log.Fatalf("train_lm: %v", err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	trainRaw, err := corpus.ReadLines(cfg.TrainFile)
	if err != nil {
		return errors.Wrap(err, "read training corpus")
	}
	v := vocab.NewLMVocabulary(trainRaw)
	log.Printf("Vocabulary size: %d", v.Size())

	trainSet, err := batch.NewLMDataset(trainRaw, v)
	if err != nil {
		return errors.Wrap(err, "index training corpus")
	}
	devSet, err := readSplit(cfg.DevFile, v)
	if err != nil {
		return err
	}
	testSet, err := readSplit(cfg.TestFile, v)
	if err != nil {
		return err
	}

	padID := v.MustEncode(vocab.LMPadToken)
	collate := func(s []batch.LMSample) batch.LMBatch { return batch.CollateLM(s, padID) }
	trainLoader := batch.NewLoader(trainSet, cfg.TrainBatch, collate, rng)
	dev := batch.NewLoader(devSet, cfg.EvalBatch, collate, nil).Batches()
	test := batch.NewLoader(testSet, cfg.EvalBatch, collate, nil).Batches()

	model, err := nn.NewLanguageModel(nn.LanguageModelConfig{
		Cell:             cfg.Cell,
		EmbeddingSize:    cfg.EmbeddingSize,
		HiddenSize:       cfg.HiddenSize,
		VocabSize:        v.Size(),
		PadID:            padID,
		EmbeddingDropout: cfg.EmbeddingDropout,
		OutputDropout:    cfg.OutputDropout,
	}, rng)
	if err != nil {
		return errors.Wrap(err, "create model")
	}
	opt, err := nn.NewOptimizer(cfg.Optimizer, model.Parameters(), cfg.LearningRate, cfg.WeightDecay)
	if err != nil {
		return errors.Wrap(err, "create optimizer")
	}

	if *verbose && len(dev) > 0 {
		first := dev[0]
		log.Printf("dev batch 0: %d sequences, %d steps, %d tokens\n%s",
			len(first.Source), len(first.Source[0]), first.NumTokens, spew.Sdump(first.Lengths))
	}

	db, runID := startRun(cfg)
	if db != nil {
		defer db.Close()
	}

	var sampled []int
	var trainLosses, devLosses []float64
	opts := train.FitOptions{
		Epochs:   cfg.Epochs,
		Patience: cfg.Patience,
		Clip:     cfg.Clip,
		OnEpoch: func(st train.EpochStats) {
			sampled = append(sampled, st.Epoch)
			trainLosses = append(trainLosses, st.TrainLoss)
			devLosses = append(devLosses, st.DevLoss)
			if db != nil {
				if err := sqlite_db.SaveEpoch(db, runID, sqlite_db.Epoch(st)); err != nil {
					log.Printf("Failed to record epoch: %v", err)
				}
			}
		},
	}
	best, _, err := train.FitLM(opts, trainLoader.Batches, dev, opt, model)
	if err != nil {
		return errors.Wrap(err, "training")
	}

	finalPPL, _, err := train.EvalLM(test, best)
	if err != nil {
		return errors.Wrap(err, "test evaluation")
	}
	log.Printf("Test ppl: %f", finalPPL)

	if db != nil {
		if err := sqlite_db.FinishRun(db, runID, finalPPL); err != nil {
			log.Printf("Failed to record test perplexity: %v", err)
		}
	}
	if path := cfg.Output.Checkpoint; path != "" {
		if err := gobs.SaveLM(path, &gobs.LMCheckpoint{Model: best, Vocab: v, Perplexity: finalPPL}); err != nil {
			return errors.Wrap(err, "save model")
		}
		log.Printf("Model saved to %s", path)
	}
	if path := cfg.Output.Plot; path != "" {
		err := lossplot.Save(path, fmt.Sprintf("%s language model", cfg.Cell), sampled,
			lossplot.Curve{Name: "train", Values: trainLosses},
			lossplot.Curve{Name: "dev", Values: devLosses},
		)
		if err != nil {
			log.Printf("Failed to plot losses: %v", err)
		}
	}
	return nil
}

// startRun opens the run history when one is configured. Failing to record
// history is logged and does not stop training.
func startRun(cfg config.LMConfig) (*sql.DB, int64) {
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
	id, err := sqlite_db.StartRun(db, "lm", string(raw))
	if err != nil {
		log.Printf("Run history disabled: %v", err)
		db.Close()
		return nil, 0
	}
	return db, id
}
