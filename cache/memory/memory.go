package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/adeilh/animeproxy/cache"
)

// Store implements cache.Store on top of ttlcache. Reads never extend an
// entry's lifetime: freshness is always measured from the last Set.
type Store struct {
	items    *ttlcache.Cache[string, []byte]
	sweeping bool
	stopOnce sync.Once
}

var _ cache.Store = (*Store)(nil)

// NewStore builds an in-memory store. Call Close when Sweep is enabled.
func NewStore(opts Options) *Store {
	cfg := opts.withDefaults()

	ttlOpts := []ttlcache.Option[string, []byte]{
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	}
	if cfg.Capacity > 0 {
		ttlOpts = append(ttlOpts, ttlcache.WithCapacity[string, []byte](uint64(cfg.Capacity)))
	}

	s := &Store{items: ttlcache.New[string, []byte](ttlOpts...)}
	if cfg.Sweep {
		s.sweeping = true
		go s.items.Start()
	}
	return s
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	item := s.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, cache.ErrNotFound
	}
	return item.Value(), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.items.Set(key, value, ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if !s.items.Has(key) {
		return cache.ErrNotFound
	}
	s.items.Delete(key)
	return nil
}

// Len reports the number of resident entries, expired ones included until
// they are swept or overwritten.
func (s *Store) Len() int { return s.items.Len() }

// Close stops the background sweep, if any.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		if s.sweeping {
			s.items.Stop()
		}
	})
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
