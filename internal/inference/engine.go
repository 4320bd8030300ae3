package inference

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/logits"
	"github.com/samcharles93/llamago/internal/tokenizer"
)

// Generate runs one generation with the stop tokens the tokenizer reports.
func Generate(ctx context.Context, m Model, tok tokenizer.Tokenizer, prompt string, maxNewTokens int, temperature float64, sampler *logits.Sampler) (*Output, error) {
	g := &Generator{
		Model:      m,
		Tokenizer:  tok,
		Sampler:    sampler,
		StopTokens: BuildStopTokens(tok),
	}
	return g.Generate(ctx, prompt, maxNewTokens, temperature)
}

// Generator manages the state of a generation session. The Sampler is owned
// by the session and must not be shared.
type Generator struct {
	Model      Model
	Tokenizer  tokenizer.Tokenizer
	Sampler    *logits.Sampler
	StopTokens []int

	// MaxContext ends generation once the context holds this many tokens.
	// Zero means unbounded.
	MaxContext int
	Stream     StreamFunc
	Logger     logger.Logger
}

// Generate tokenizes prompt and extends it by at most maxNewTokens tokens.
//
// With temperature > 0 the logits are scaled by 1/temperature, normalised
// and handed to the Sampler. With temperature == 0 the most likely token is
// taken directly and the Sampler's PRNG is left untouched. Any failure
// aborts the call without a partial result; reaching a stop token is a
// successful early end.
func (g *Generator) Generate(ctx context.Context, prompt string, maxNewTokens int, temperature float64) (*Output, error) {
	if g.Model == nil || g.Tokenizer == nil || g.Sampler == nil {
		return nil, fmt.Errorf("%w: generator requires a model, tokenizer and sampler", ErrInvalidInput)
	}
	if math.IsNaN(temperature) || temperature < 0 {
		return nil, fmt.Errorf("%w: temperature %v", ErrInvalidInput, temperature)
	}
	log := g.Logger
	if log == nil {
		log = logger.Discard()
	}

	start := time.Now()
	out, err := g.run(ctx, prompt, maxNewTokens, temperature)
	elapsed := time.Since(start)
	if err != nil {
		observeFailure(ctx, err)
		log.Debug("generation failed", "error", err, "elapsed", elapsed)
		return nil, err
	}
	out.Elapsed = elapsed
	observeSuccess(out)
	log.Debug("generation finished",
		"prompt_tokens", out.PromptTokens,
		"tokens", out.TokenCount,
		"stop_reason", out.StopReason,
		"elapsed", out.Elapsed,
		"tps", out.TokensPerSecond(),
	)
	return out, nil
}

func (g *Generator) run(ctx context.Context, prompt string, maxNewTokens int, temperature float64) (*Output, error) {
	ids, err := safeEncode(g.Tokenizer, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenize, err)
	}

	promptLen := len(ids)
	tokens := make([]int, promptLen, promptLen+max(maxNewTokens, 0))
	copy(tokens, ids)

	reason := StopMaxTokens
	var emitted string
	for step := 0; step < maxNewTokens; step++ {
		if g.MaxContext > 0 && len(tokens) >= g.MaxContext {
			reason = StopContextFull
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next, err := g.next(ctx, tokens, temperature)
		if err != nil {
			return nil, fmt.Errorf("%w: step %d: %w", ErrInference, step, err)
		}
		tokens = append(tokens, next)

		if slices.Contains(g.StopTokens, next) {
			reason = StopToken
			break
		}
		if g.Stream != nil {
			emitted = g.emit(tokens[promptLen:], emitted)
		}
	}

	generated := tokens[promptLen:]
	textTokens := generated
	if reason == StopToken {
		textTokens = generated[:len(generated)-1]
	}

	text := ""
	if len(textTokens) > 0 {
		text, err = safeDecode(g.Tokenizer, textTokens)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDetokenize, err)
		}
	}
	// Flush whatever emit held back, including an unfinished UTF-8 tail.
	if g.Stream != nil && len(text) > len(emitted) && strings.HasPrefix(text, emitted) {
		g.Stream(text[len(emitted):])
	}

	return &Output{
		Text:         text,
		TokenCount:   len(generated),
		PromptTokens: promptLen,
		StopReason:   reason,
	}, nil
}

// next selects one token for the current context.
func (g *Generator) next(ctx context.Context, tokens []int, temperature float64) (int, error) {
	lg, err := safeForward(ctx, g.Model, tokens)
	if err != nil {
		return 0, err
	}
	if len(lg) == 0 {
		return 0, fmt.Errorf("%w: model returned empty logits", ErrInvalidInput)
	}
	if temperature <= 0 {
		return logits.ArgmaxIndex(logits.Widen(lg))
	}
	return g.Sampler.Sample(logits.Softmax(lg, temperature))
}

// emit streams whatever decoded text was added since the last call. Text that
// ends in an incomplete UTF-8 sequence is held back until it completes.
func (g *Generator) emit(generated []int, emitted string) string {
	full, err := safeDecode(g.Tokenizer, generated)
	if err != nil || !utf8.ValidString(full) {
		return emitted
	}
	if len(full) <= len(emitted) || !strings.HasPrefix(full, emitted) {
		return emitted
	}
	g.Stream(full[len(emitted):])
	return full
}

func safeForward(ctx context.Context, m Model, tokens []int) (lg []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in NextTokenLogits: %v", rec)
		}
	}()
	return m.NextTokenLogits(ctx, tokens)
}

func safeEncode(tok tokenizer.Tokenizer, prompt string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(prompt)
}

func safeDecode(tok tokenizer.Tokenizer, ids []int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Decode: %v", rec)
		}
	}()
	return tok.Decode(ids)
}
