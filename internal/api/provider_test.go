package api

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/samcharles93/llamago/internal/engine"
	"github.com/samcharles93/llamago/internal/pretrained"
)

func TestCachedProviderLoadsOnce(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	p := NewCachedProvider(ProviderConfig{
		DefaultModel: pretrained.TinyLlama,
		Load: func(_ context.Context, v pretrained.Variant) (*engine.Engine, error) {
			loads.Add(1)
			e := testEngine()
			e.Variant = v
			return e, nil
		},
	})
	defer p.Close()

	var wg sync.WaitGroup
	for _, id := range []string{"", "tinyllama", "TinyLlama-1.1B", "tinyllama"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.WithEngine(context.Background(), id, func(e *engine.Engine) error {
				if e.Variant != pretrained.TinyLlama {
					t.Errorf("unexpected variant %v", e.Variant)
				}
				return nil
			})
			if err != nil {
				t.Errorf("WithEngine(%q): %v", id, err)
			}
		}()
	}
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}

	models, err := p.ListModels()
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected both variants, got %+v", models)
	}
	for _, m := range models {
		if want := m.ID == "tinyllama"; m.Loaded != want {
			t.Fatalf("%s: loaded = %v, want %v", m.ID, m.Loaded, want)
		}
	}
}

func TestCachedProviderRejectsUnknownModel(t *testing.T) {
	t.Parallel()

	p := NewCachedProvider(ProviderConfig{
		Load: func(context.Context, pretrained.Variant) (*engine.Engine, error) {
			t.Fatalf("loader should not be called")
			return nil, nil
		},
	})
	defer p.Close()

	err := p.WithEngine(context.Background(), "mistral", func(*engine.Engine) error { return nil })
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestCachedProviderDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	p := NewCachedProvider(ProviderConfig{
		Load: func(context.Context, pretrained.Variant) (*engine.Engine, error) {
			if loads.Add(1) == 1 {
				return nil, pretrained.ErrNetwork
			}
			return testEngine(), nil
		},
	})
	defer p.Close()

	noop := func(*engine.Engine) error { return nil }
	if err := p.WithEngine(context.Background(), "llama3", noop); !errors.Is(err, pretrained.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if err := p.WithEngine(context.Background(), "llama3", noop); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if loads.Load() != 2 {
		t.Fatalf("expected a second load after failure, got %d", loads.Load())
	}
}

func TestCachedProviderReportsCachedArtifacts(t *testing.T) {
	t.Parallel()

	r := &pretrained.Resolver{CacheRoot: t.TempDir()}
	p := NewCachedProvider(ProviderConfig{Resolver: r})
	defer p.Close()

	models, err := p.ListModels()
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	for _, m := range models {
		if m.Cached {
			t.Fatalf("%s should not be cached in an empty root", m.ID)
		}
	}
}

func TestCachedProviderLoadSurvivesCanceledCaller(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var loads atomic.Int32
	p := NewCachedProvider(ProviderConfig{
		Load: func(ctx context.Context, v pretrained.Variant) (*engine.Engine, error) {
			loads.Add(1)
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			e := testEngine()
			e.Variant = v
			return e, nil
		},
	})
	defer p.Close()

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- p.WithEngine(firstCtx, "tinyllama", func(*engine.Engine) error { return nil })
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		secondErr <- p.WithEngine(context.Background(), "tinyllama", func(e *engine.Engine) error {
			if e.Variant != pretrained.TinyLlama {
				t.Errorf("unexpected variant %v", e.Variant)
			}
			return nil
		})
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller: expected context.Canceled, got %v", err)
	}
	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("waiting caller should get the engine, got %v", err)
	}
	if n := loads.Load(); n != 1 {
		t.Fatalf("expected one load, got %d", n)
	}
}
