package inference

import (
	"slices"

	"github.com/samcharles93/llamago/internal/tokenizer"
)

// BuildStopTokens returns the ids that end generation for tok. Tokenizers
// that list their stop tokens win; otherwise a non-negative EOS id is used.
func BuildStopTokens(tok tokenizer.Tokenizer) []int {
	var stop []int
	if t, ok := tok.(interface{ StopTokens() []int }); ok {
		stop = append(stop, t.StopTokens()...)
	}
	if t, ok := tok.(interface{ EOSID() int }); ok {
		if id := t.EOSID(); id >= 0 && !slices.Contains(stop, id) {
			stop = append(stop, id)
		}
	}
	return stop
}
