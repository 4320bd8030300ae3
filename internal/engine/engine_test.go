package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/samcharles93/llamago/internal/inference"
	"github.com/samcharles93/llamago/internal/logits"
	"github.com/samcharles93/llamago/internal/pretrained"
)

const tinyTokenizer = `{
	"normalizer": {
		"type": "Sequence",
		"normalizers": [
			{"type": "Prepend", "prepend": "▁"},
			{"type": "Replace", "pattern": {"String": " "}, "content": "▁"}
		]
	},
	"post_processor": {
		"type": "TemplateProcessing",
		"single": [
			{"SpecialToken": {"id": "<s>", "type_id": 0}},
			{"Sequence": {"id": "A", "type_id": 0}}
		]
	},
	"model": {
		"type": "BPE",
		"unk_token": "<unk>",
		"byte_fallback": true,
		"vocab": {"<unk>": 0, "<s>": 1, "</s>": 2, "<0x21>": 3, "▁": 4, "h": 5, "i": 6, "▁h": 7, "▁hi": 8},
		"merges": ["▁ h", "▁h i"]
	},
	"added_tokens": [
		{"id": 0, "content": "<unk>", "special": true},
		{"id": 1, "content": "<s>", "special": true},
		{"id": 2, "content": "</s>", "special": true}
	]
}`

func newTestLoader(t *testing.T, fetches *atomic.Int32) Loader {
	t.Helper()
	fetch := pretrained.FetcherFunc(func(_ context.Context, url string) (io.ReadCloser, error) {
		fetches.Add(1)
		if strings.Contains(url, "tokenizer.json") {
			return io.NopCloser(strings.NewReader(tinyTokenizer)), nil
		}
		return io.NopCloser(strings.NewReader("tiny weights")), nil
	})
	return Loader{Resolver: &pretrained.Resolver{CacheRoot: t.TempDir(), Fetcher: fetch}, Hidden: 4}
}

func TestLoadAndGenerate(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	l := newTestLoader(t, &fetches)
	e, err := l.Load(context.Background(), pretrained.TinyLlama)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fetches.Load() != 2 {
		t.Fatalf("expected weights and tokenizer fetched, got %d fetches", fetches.Load())
	}
	if e.Tokenizer.VocabSize() != 9 {
		t.Fatalf("unexpected vocab size %d", e.Tokenizer.VocabSize())
	}
	if len(e.StopTokens) != 1 || e.StopTokens[0] != 2 {
		t.Fatalf("unexpected stop tokens %v", e.StopTokens)
	}

	req := DefaultRequest("hi")
	req.Temperature = 0
	a, err := e.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := e.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Text != b.Text || a.TokenCount != b.TokenCount {
		t.Fatalf("greedy runs differ: %+v vs %+v", a, b)
	}
	if a.TokenCount > req.MaxNewTokens {
		t.Fatalf("produced %d tokens, budget %d", a.TokenCount, req.MaxNewTokens)
	}

	if _, err := l.Load(context.Background(), pretrained.TinyLlama); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fetches.Load() != 2 {
		t.Fatalf("reload should hit the cache, got %d fetches", fetches.Load())
	}
}

func TestGenerateSeededSamplingIsReproducible(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	e, err := newTestLoader(t, &fetches).Load(context.Background(), pretrained.TinyLlama)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	req := DefaultRequest("hi")
	req.Temperature = 1.2
	req.TopP = 1
	req.Seed = 7

	a, err := e.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := e.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Text != b.Text {
		t.Fatalf("same seed, different text: %q vs %q", a.Text, b.Text)
	}
}

func TestGenerateRejectsBadTopP(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	e, err := newTestLoader(t, &fetches).Load(context.Background(), pretrained.TinyLlama)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	req := DefaultRequest("hi")
	req.TopP = 1.5
	if _, err := e.Generate(context.Background(), req, nil); !errors.Is(err, inference.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoadPropagatesNetworkErrors(t *testing.T) {
	t.Parallel()

	fetch := pretrained.FetcherFunc(func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("offline")
	})
	l := Loader{Resolver: &pretrained.Resolver{CacheRoot: t.TempDir(), Fetcher: fetch}}
	if _, err := l.Load(context.Background(), pretrained.Llama3); !errors.Is(err, pretrained.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestNewSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		temp    float64
		topP    float64
		want    logits.Kind
		wantErr bool
	}{
		{"zero temperature is greedy", 0, 0.9, logits.KindArgmax, false},
		{"negative temperature is greedy", -1, 0.9, logits.KindArgmax, false},
		{"positive temperature samples", 0.6, 0.9, logits.KindTopP, false},
		{"top-p above one", 0.6, 1.1, 0, true},
		{"top-p zero", 0.6, 0, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewSampler(tc.temp, tc.topP, 42)
			if (err != nil) != tc.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && s.Kind() != tc.want {
				t.Fatalf("kind = %v, want %v", s.Kind(), tc.want)
			}
		})
	}
}
