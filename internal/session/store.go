package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/JaimeStill/tayyib/internal/assessment"
	"github.com/JaimeStill/tayyib/internal/metrics"
	"github.com/JaimeStill/tayyib/pkg/keylock"
	"github.com/JaimeStill/tayyib/pkg/lifecycle"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidID reports whether id is usable as a session id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ExpireFunc receives the contents of a session record discarded for age.
type ExpireFunc func(ctx context.Context, id string, c Cache)

// Store loads and saves session caches. Decoded records are held in an
// in-process TTL cache in front of the Backend, and access to a session
// id is serialized.
type Store struct {
	backend Backend
	hot     *cache.Cache
	locks   *keylock.Locker
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
	expired ExpireFunc

	mu    sync.Mutex
	known map[string]struct{}
}

// NewStore creates a Store over backend. A non-positive ttl uses DefaultTTL.
func NewStore(backend Backend, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		backend: backend,
		hot:     cache.New(ttl, ttl*2),
		locks:   keylock.New(),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With("system", "session"),
		metrics: m,
		known:   make(map[string]struct{}),
	}
}

// OnExpire registers fn to run, under the session's lock, whenever a
// stale record is discarded.
func (s *Store) OnExpire(fn ExpireFunc) {
	s.expired = fn
}

// Start sweeps sessions saved by this process every interval until the
// coordinator shuts down, so records that are never loaded again still
// expire. A non-positive interval disables the sweep.
func (s *Store) Start(lc *lifecycle.Coordinator, interval time.Duration) {
	if interval <= 0 {
		return
	}
	lc.OnShutdown(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				if n := s.Sweep(lc.Context()); n > 0 {
					s.logger.Info("expired sessions swept", "count", n)
				}
			}
		}
	})
}

// Sweep loads every session this process has saved, discarding the stale
// ones, and returns how many it stopped tracking.
func (s *Store) Sweep(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.known))
	for id := range s.known {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var swept int
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		unlock := s.locks.Lock(id)
		_, err := s.load(ctx, id)
		unlock()
		if err != nil {
			s.logger.Warn("session sweep failed", "session_id", id, "error", err)
			continue
		}
		if !s.tracked(id) {
			swept++
		}
	}
	return swept
}

// WithClock sets the clock used for freshness checks and save stamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// TTL returns the record lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Load returns the session's cache, or an empty cache when the record is
// absent, stale, or cannot be decoded.
func (s *Store) Load(ctx context.Context, id string) (Cache, error) {
	if !ValidID(id) {
		return Cache{}, ErrInvalidID
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	c, err := s.load(ctx, id)
	if err != nil {
		return Cache{}, err
	}
	return c.Clone(), nil
}

// Save applies u to the current cache, stamps it, and persists it.
// It returns the saved cache.
func (s *Store) Save(ctx context.Context, id string, u Update) (Cache, error) {
	if !ValidID(id) {
		return Cache{}, ErrInvalidID
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return Cache{}, err
	}

	next := current.Clone()
	if err := u.Apply(&next); err != nil {
		return Cache{}, err
	}
	next.LastPersistedAt = s.now().UnixMilli()

	data, err := json.Marshal(next)
	if err != nil {
		return Cache{}, fmt.Errorf("encode session: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return Cache{}, err
	}

	if err := s.backend.Write(ctx, id, data); err != nil {
		return Cache{}, err
	}
	s.hot.Set(id, next, cache.DefaultExpiration)
	s.track(id)

	s.logger.Debug(
		"session saved",
		"session_id", id,
		"single", len(next.SingleProductHistory),
		"batch", len(next.BatchHistory),
	)
	return next.Clone(), nil
}

// Clear removes the session record and returns the cache it held so the
// caller can release resources owned by its assessments.
func (s *Store) Clear(ctx context.Context, id string) (Cache, error) {
	if !ValidID(id) {
		return Cache{}, ErrInvalidID
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.load(ctx, id)
	if err != nil {
		return Cache{}, err
	}

	if err := s.backend.Delete(ctx, id); err != nil {
		return Cache{}, err
	}
	s.hot.Delete(id)
	s.forget(id)

	s.logger.Info("session cleared", "session_id", id)
	return current, nil
}

// load must run under the session's lock.
func (s *Store) load(ctx context.Context, id string) (Cache, error) {
	now := s.now()

	var staleHot *Cache
	if v, ok := s.hot.Get(id); ok {
		c := v.(Cache)
		if c.Fresh(now, s.ttl) {
			s.metrics.RecordSessionLoad("hit")
			return c, nil
		}
		s.hot.Delete(id)
		staleHot = &c
	}

	data, err := s.backend.Read(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.RecordSessionLoad("miss")
			if staleHot != nil {
				s.expire(ctx, id, *staleHot)
			}
			s.forget(id)
			return Empty(), nil
		}
		return Cache{}, err
	}

	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		s.metrics.RecordSessionLoad("corrupt")
		s.logger.Warn("discarding unreadable session record", "session_id", id, "error", err)
		if staleHot != nil {
			s.expire(ctx, id, *staleHot)
		}
		return Empty(), nil
	}

	if !c.Fresh(now, s.ttl) {
		s.metrics.RecordSessionLoad("stale")
		s.logger.Warn(
			"discarding stale session record",
			"session_id", id,
			"last_persisted_at", time.UnixMilli(c.LastPersistedAt).UTC(),
		)
		if err := s.backend.Delete(context.WithoutCancel(ctx), id); err != nil {
			s.logger.Warn("stale session delete failed", "session_id", id, "error", err)
		}
		s.expire(ctx, id, c)
		s.forget(id)
		return Empty(), nil
	}

	if c.SingleProductHistory == nil {
		c.SingleProductHistory = []assessment.Product{}
	}
	if c.BatchHistory == nil {
		c.BatchHistory = []assessment.Product{}
	}

	s.metrics.RecordSessionLoad("hit")
	s.hot.Set(id, c, cache.DefaultExpiration)
	return c, nil
}

func (s *Store) expire(ctx context.Context, id string, c Cache) {
	if s.expired != nil {
		s.expired(context.WithoutCancel(ctx), id, c)
	}
}

func (s *Store) track(id string) {
	s.mu.Lock()
	s.known[id] = struct{}{}
	s.mu.Unlock()
}

func (s *Store) forget(id string) {
	s.mu.Lock()
	delete(s.known, id)
	s.mu.Unlock()
}

func (s *Store) tracked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[id]
	return ok
}
