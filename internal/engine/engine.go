// Package engine binds a pretrained variant to a tokenizer and model
// backend and runs requests against it.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/logits"
	"github.com/samcharles93/llamago/internal/pretrained"
	"github.com/samcharles93/llamago/internal/tokenizer"
)

// Generation defaults used by the CLI and the HTTP API.
const (
	DefaultTopP         = 0.9
	DefaultTemperature  = 0.6
	DefaultMaxContext   = 128
	DefaultMaxNewTokens = 50
	DefaultSeed         = 42
)

// Request is one generation against a loaded Engine.
type Request struct {
	Prompt string
	// Chat wraps Prompt in the variant's chat template.
	Chat         bool
	MaxNewTokens int
	Temperature  float64
	TopP         float64
	Seed         uint64
	// MaxContext caps prompt plus generated tokens; zero disables the cap.
	MaxContext int
}

// DefaultRequest returns a Request with the package defaults.
func DefaultRequest(prompt string) Request {
	return Request{
		Prompt:       prompt,
		MaxNewTokens: DefaultMaxNewTokens,
		Temperature:  DefaultTemperature,
		TopP:         DefaultTopP,
		Seed:         DefaultSeed,
		MaxContext:   DefaultMaxContext,
	}
}

// NewSampler picks greedy decoding for temperature <= 0 and nucleus
// sampling otherwise.
func NewSampler(temperature, topP float64, seed uint64) (*logits.Sampler, error) {
	if temperature <= 0 {
		return logits.Argmax(), nil
	}
	return logits.NewTopP(topP, seed)
}

// Engine is a loaded variant. Generate calls are serialised.
type Engine struct {
	Variant    pretrained.Variant
	Paths      pretrained.Paths
	Model      inference.Model
	Tokenizer  tokenizer.Vocabulary
	StopTokens []int

	mu sync.Mutex
}

// Generate runs req with a sampler built for this call only.
func (e *Engine) Generate(ctx context.Context, req Request, stream inference.StreamFunc) (*inference.Output, error) {
	sampler, err := NewSampler(req.Temperature, req.TopP, req.Seed)
	if err != nil {
		return nil, err
	}

	prompt := req.Prompt
	if req.Chat {
		prompt = e.Variant.Pretrained().Chat(prompt)
	}

	log := logger.FromContext(ctx).With("variant", e.Variant.String())
	log.Debug("generate",
		"sampler", sampler.String(),
		"temperature", req.Temperature,
		"max_new_tokens", req.MaxNewTokens,
		"chat", req.Chat,
	)

	g := &inference.Generator{
		Model:      e.Model,
		Tokenizer:  e.Tokenizer,
		Sampler:    sampler,
		StopTokens: e.StopTokens,
		MaxContext: req.MaxContext,
		Stream:     stream,
		Logger:     log,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := g.Generate(ctx, prompt, req.MaxNewTokens, req.Temperature)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Variant, err)
	}
	return out, nil
}
