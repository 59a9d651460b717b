package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/affiliate-ledger/pkg/config"
	"github.com/angelmondragon/affiliate-ledger/pkg/logger"
	"github.com/angelmondragon/affiliate-ledger/pkg/redis"
)

// Store is the slice of the redis client the provider reads from.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SettingsKey(name string) string
}

// Provider serves Ledger snapshots from the config store, caching each read
// for a short TTL.
type Provider struct {
	store    Store
	key      string
	ttl      time.Duration
	defaults Ledger
	logg     *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   Ledger
	loadedAt time.Time
	hasValue bool
}

func NewProvider(store Store, cfg config.LedgerConfig, logg *logger.Logger) (*Provider, error) {
	defaults := Defaults(cfg)
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("ledger defaults: %w", err)
	}
	p := &Provider{
		defaults: defaults,
		ttl:      cfg.SettingsCacheTTL,
		logg:     logg,
		now:      time.Now,
		store:    store,
	}
	if store != nil {
		p.key = store.SettingsKey(cfg.SettingsKey)
	}
	return p, nil
}

// Static returns a provider that always serves l. Used by tests and tools.
func Static(l Ledger) *Provider {
	return &Provider{defaults: l, cached: l, hasValue: true, ttl: time.Duration(1<<63 - 1), now: time.Now, loadedAt: time.Now()}
}

// Current returns the active snapshot. When the store is unreachable the last
// good snapshot is served, then the defaults.
func (p *Provider) Current(ctx context.Context) (Ledger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.hasValue && now.Sub(p.loadedAt) < p.ttl {
		return p.cached, nil
	}

	next, err := p.load(ctx)
	if err != nil {
		if p.logg != nil {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{"settings_key": p.key, "error": err.Error()}), "ledger settings unavailable, serving fallback")
		}
		if !p.hasValue {
			p.cached = p.defaults
			p.hasValue = true
		}
		p.loadedAt = now
		return p.cached, nil
	}

	p.cached = next
	p.loadedAt = now
	p.hasValue = true
	return next, nil
}

func (p *Provider) load(ctx context.Context) (Ledger, error) {
	if p.store == nil {
		return p.defaults, nil
	}
	raw, err := p.store.Get(ctx, p.key)
	if errors.Is(err, redis.Nil) {
		return p.defaults, nil
	}
	if err != nil {
		return Ledger{}, fmt.Errorf("read settings: %w", err)
	}

	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Ledger{}, fmt.Errorf("decode settings: %w", err)
	}
	merged := p.defaults.merge(doc)
	if err := merged.Validate(); err != nil {
		return Ledger{}, fmt.Errorf("invalid settings document: %w", err)
	}
	return merged, nil
}
