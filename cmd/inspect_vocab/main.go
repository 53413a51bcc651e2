// Command inspect_vocab prints the vocabularies stored in a checkpoint.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/golangast/nlutrain/neural/nnu/gobs"
	"github.com/golangast/nlutrain/neural/nnu/vocab"
)

var (
	modelPath = flag.String("model", "models/joint.gob", "Path to a checkpoint")
	limit     = flag.Int("n", 40, "Number of tokens to print per vocabulary")
)

func printVocab(name string, v *vocab.Vocabulary) {
	fmt.Printf("%s vocabulary size: %d\n", name, v.Size())
	if v.UnknownTokenID >= 0 {
		fmt.Printf("Unknown token ID: %d\n", v.UnknownTokenID)
	}
	fmt.Printf("First %d tokens:\n", *limit)
	for i := 0; i < *limit && i < len(v.TokenToWord); i++ {
		fmt.Printf("ID %2d: %q\n", i, v.TokenToWord[i])
	}
	fmt.Println()
}

func main() {
	flag.Parse()
	h, err := gobs.ReadHeader(*modelPath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Checkpoint %s: kind %s, format %s\n\n", *modelPath, h.Kind, h.Format)

	switch h.Kind {
	case gobs.KindLM:
		c, err := gobs.LoadLM(*modelPath)
		if err != nil {
			log.Fatal(err)
		}
		printVocab("Word", c.Vocab)
	case gobs.KindJoint:
		c, err := gobs.LoadJoint(*modelPath)
		if err != nil {
			log.Fatal(err)
		}
		printVocab("Word", c.Lang.Words)
		printVocab("Slot", c.Lang.Slots)
		printVocab("Intent", c.Lang.Intents)
	default:
		log.Fatalf("Unknown checkpoint kind %q", h.Kind)
	}
}
