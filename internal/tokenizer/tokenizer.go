package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Tokenizer defines the minimal interface used by the generation loop.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
}

// Vocabulary is a Tokenizer loaded from a tokenizer file.
type Vocabulary interface {
	Tokenizer
	VocabSize() int
	TokenString(id int) string
	// StopTokens lists the ids that end generation.
	StopTokens() []int
}

// Load reads a tokenizer file. HF tokenizer.json files are detected by their
// extension; everything else is treated as a tiktoken rank file.
func Load(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		tok, err := LoadHFTokenizerBytes(data)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
		}
		return tok, nil
	default:
		tok, err := LoadTiktokenBytes(data, Llama3Specials())
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
		}
		return tok, nil
	}
}

// endOfTextTokens are the special token spellings treated as end of sequence.
var endOfTextTokens = []string{
	"</s>",
	"<|endoftext|>",
	"<|end_of_text|>",
	"<|eot_id|>",
	"<|im_end|>",
}

func isEndOfText(s string) bool {
	s = strings.TrimSpace(s)
	for _, eot := range endOfTextTokens {
		if s == eot {
			return true
		}
	}
	return false
}
