package inference

import (
	"context"
	"errors"
	"time"

	"github.com/samcharles93/llamago/internal/logits"
)

var (
	// ErrInvalidInput reports bad generation parameters or a malformed
	// distribution from the model.
	ErrInvalidInput = logits.ErrInvalidInput
	// ErrTokenize wraps failures encoding the prompt.
	ErrTokenize = errors.New("tokenize prompt")
	// ErrInference wraps failures of the model or the sampler mid-generation.
	ErrInference = errors.New("inference")
	// ErrDetokenize wraps failures decoding the generated tokens.
	ErrDetokenize = errors.New("detokenize output")
)

// Model produces next-token logits conditioned on the full token context.
// Caching of earlier positions is the implementation's concern.
type Model interface {
	NextTokenLogits(ctx context.Context, tokens []int) ([]float32, error)
}

// StreamFunc receives generated text as it becomes decodable.
type StreamFunc func(text string)

// StopReason explains why a generation ended.
type StopReason string

const (
	StopMaxTokens   StopReason = "max_tokens"
	StopToken       StopReason = "stop_token"
	StopContextFull StopReason = "context_full"
)

// Output is the immutable result of one generation.
type Output struct {
	// Text is the decoded continuation, excluding the prompt and any
	// terminating stop token.
	Text string
	// TokenCount is the number of tokens produced, including a terminating
	// stop token.
	TokenCount   int
	PromptTokens int
	Elapsed      time.Duration
	StopReason   StopReason
}

// ElapsedSeconds returns the wall-clock duration in seconds.
func (o *Output) ElapsedSeconds() float64 {
	return o.Elapsed.Seconds()
}

// TokensPerSecond returns the generation throughput, or 0 when no time elapsed.
func (o *Output) TokensPerSecond() float64 {
	if s := o.Elapsed.Seconds(); s > 0 {
		return float64(o.TokenCount) / s
	}
	return 0
}
