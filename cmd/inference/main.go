// Command inference loads trained checkpoints and runs them on a query: the
// joint model predicts the intent and slots, the language model scores it.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/golangast/nlutrain/neural/nnu/gobs"
	"github.com/golangast/nlutrain/neural/nnu/predict"
)

var (
	jointModelPath = flag.String("joint", "models/joint.gob", "Path to a joint model checkpoint; empty to skip")
	lmModelPath    = flag.String("lm", "", "Path to a language model checkpoint; empty to skip")
	query          = flag.String("query", "", "Whitespace-tokenized query")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if *query == "" {
		log.Fatalf("Missing -query")
	}

	if *jointModelPath != "" {
		c, err := gobs.LoadJoint(*jointModelPath)
		if err != nil {
			log.Fatalf("Failed to load joint model: %v", err)
		}
		log.Printf("Loaded joint model (test slot F1 %.3f, intent accuracy %.3f)", c.SlotF1, c.Accuracy)
		p, err := predict.NewTagger(c.Model, c.Lang).Predict(*query)
		if err != nil {
			log.Fatalf("Prediction failed: %v", err)
		}
		fmt.Printf("Intent: %s (%.3f)\n", p.Intent, p.Confidence)
		for _, tok := range p.Slots {
			fmt.Printf("  %-15s %s\n", tok.Word, tok.Tag)
		}
		for label, spans := range p.Chunks() {
			fmt.Printf("%s: %v\n", label, spans)
		}
	}

	if *lmModelPath != "" {
		c, err := gobs.LoadLM(*lmModelPath)
		if err != nil {
			log.Fatalf("Failed to load language model: %v", err)
		}
		ppl, err := predict.SentencePerplexity(c.Model, c.Vocab, *query)
		if err != nil {
			log.Fatalf("Scoring failed: %v", err)
		}
		fmt.Printf("Perplexity: %.2f\n", ppl)
	}
}
