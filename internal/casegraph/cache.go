package casegraph

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	id "caseregistry/pkg/domain"
)

// CachedCaseStore is a read-through cache over a CaseStore. Hierarchy builds
// fetch the same parent and sibling records repeatedly, so even a short TTL
// removes most remote lookups. Missing records are not cached: absence is
// often transient (a case being synced) and a stale negative would hide a
// whole branch.
type CachedCaseStore struct {
	inner  CaseStore
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCaseStore(inner CaseStore, client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedCaseStore {
	return &CachedCaseStore{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (s *CachedCaseStore) Get(ctx context.Context, caseID id.CaseID) (*Case, error) {
	key := cacheKey(caseID)

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var c Case
		if err := json.Unmarshal(raw, &c); err == nil {
			return &c, nil
		}
		// Undecodable entries are dropped and refetched.
		s.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "case cache read failed, falling through",
			slog.String("case_id", caseID),
			slog.Any("error", err))
	}

	c, err := s.inner.Get(ctx, caseID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(c); err == nil {
		if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "case cache write failed",
				slog.String("case_id", caseID),
				slog.Any("error", err))
		}
	}
	return c, nil
}

// Invalidate drops a case from the cache, for callers that learn about a
// case update out of band.
func (s *CachedCaseStore) Invalidate(ctx context.Context, caseID id.CaseID) error {
	return s.client.Del(ctx, cacheKey(caseID)).Err()
}

func cacheKey(caseID id.CaseID) string {
	return "casegraph:case:" + caseID
}
