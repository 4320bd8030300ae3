package engine

import (
	"context"
	"fmt"

	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/pretrained"
	"github.com/samcharles93/llamago/internal/tokenizer"
	"github.com/samcharles93/llamago/internal/toy"
)

// Loader resolves a variant's artifacts and builds an Engine from them.
type Loader struct {
	Resolver *pretrained.Resolver
	// Hidden is the toy backend width; zero means toy.DefaultHidden.
	Hidden int
}

// Load downloads missing artifacts, reads the tokenizer and seeds the model
// backend from the weights file.
func (l Loader) Load(ctx context.Context, v pretrained.Variant) (*Engine, error) {
	log := logger.FromContext(ctx).With("variant", v.String())

	paths, err := l.Resolver.Resolve(ctx, v)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(paths.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", v, err)
	}

	hidden := l.Hidden
	if hidden <= 0 {
		hidden = toy.DefaultHidden
	}
	m, err := toy.FromFile(paths.Weights, tok.VocabSize(), hidden)
	if err != nil {
		return nil, fmt.Errorf("%s: model: %w", v, err)
	}

	stop := inference.BuildStopTokens(tok)
	log.Info("model loaded",
		"vocab", tok.VocabSize(),
		"hidden", hidden,
		"stop_tokens", stop,
		"weights", paths.Weights,
	)

	return &Engine{
		Variant:    v,
		Paths:      paths,
		Model:      m,
		Tokenizer:  tok,
		StopTokens: stop,
	}, nil
}
