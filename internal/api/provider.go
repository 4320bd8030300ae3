package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/samcharles93/llamago/internal/engine"
	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/pretrained"
)

// Provider hands out loaded engines by model id.
type Provider interface {
	WithEngine(ctx context.Context, modelID string, fn func(e *engine.Engine) error) error
	ListModels() ([]ModelInfo, error)
}

// LoadFunc builds an engine for a variant.
type LoadFunc func(ctx context.Context, v pretrained.Variant) (*engine.Engine, error)

type ProviderConfig struct {
	// DefaultModel is used when a request names no model.
	DefaultModel pretrained.Variant
	// IdleTTL evicts engines unused for this long. Zero keeps them forever.
	IdleTTL  time.Duration
	Resolver *pretrained.Resolver
	Load     LoadFunc
	Logger   logger.Logger
}

// CachedProvider loads each variant once and keeps it while it is in use.
type CachedProvider struct {
	cfg   ProviderConfig
	cache *ttlcache.Cache[pretrained.Variant, *engine.Engine]
	group singleflight.Group
}

// NewCachedProvider starts the expiry loop; call Close to stop it.
func NewCachedProvider(cfg ProviderConfig) *CachedProvider {
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	c := ttlcache.New[pretrained.Variant, *engine.Engine](
		ttlcache.WithTTL[pretrained.Variant, *engine.Engine](ttl),
	)
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[pretrained.Variant, *engine.Engine]) {
		if reason == ttlcache.EvictionReasonExpired {
			cfg.Logger.Info("model unloaded", "variant", item.Key().String(), "idle", ttl)
		}
	})
	go c.Start()
	return &CachedProvider{cfg: cfg, cache: c}
}

// Close stops the expiry loop and drops every loaded engine.
func (p *CachedProvider) Close() {
	p.cache.Stop()
	p.cache.DeleteAll()
}

func (p *CachedProvider) variant(modelID string) (pretrained.Variant, error) {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return p.cfg.DefaultModel, nil
	}
	v, err := pretrained.ParseVariant(modelID)
	if err != nil {
		return 0, newInvalidRequest(err.Error())
	}
	return v, nil
}

func (p *CachedProvider) WithEngine(ctx context.Context, modelID string, fn func(e *engine.Engine) error) error {
	v, err := p.variant(modelID)
	if err != nil {
		return err
	}
	e, err := p.getOrLoad(ctx, v)
	if err != nil {
		return err
	}
	return fn(e)
}

func (p *CachedProvider) getOrLoad(ctx context.Context, v pretrained.Variant) (*engine.Engine, error) {
	if item := p.cache.Get(v); item != nil {
		return item.Value(), nil
	}

	// The load outlives the caller that started it: others may be waiting
	// on the same key, so only this caller's wait honours its ctx.
	loadCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(v.ID(), func() (any, error) {
		if item := p.cache.Get(v); item != nil {
			return item.Value(), nil
		}
		if p.cfg.Load == nil {
			return nil, fmt.Errorf("no model loader configured")
		}
		e, err := p.cfg.Load(loadCtx, v)
		if err != nil {
			return nil, err
		}
		p.cache.Set(v, e, ttlcache.DefaultTTL)
		return e, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*engine.Engine), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListModels reports every known variant with its cache and load state.
func (p *CachedProvider) ListModels() ([]ModelInfo, error) {
	models := make([]ModelInfo, 0, len(pretrained.Variants()))
	for _, v := range pretrained.Variants() {
		info := ModelInfo{
			ID:      v.ID(),
			Object:  "model",
			Name:    v.String(),
			OwnedBy: "tracel-ai",
			Loaded:  p.cache.Has(v),
		}
		if p.cfg.Resolver != nil {
			cached, err := p.cfg.Resolver.Cached(v.Pretrained())
			if err != nil {
				return nil, err
			}
			info.Cached = cached
		}
		models = append(models, info)
	}
	return models, nil
}
