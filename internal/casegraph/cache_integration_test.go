//go:build integration

package casegraph_test

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caseregistry/internal/casegraph"
	id "caseregistry/pkg/domain"
	"caseregistry/pkg/platform/sentinel"
	"caseregistry/pkg/testutil/containers"
)

// countingStore counts fetches that reach the backing store.
type countingStore struct {
	inner *casegraph.InMemoryCaseStore
	gets  atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, caseID id.CaseID) (*casegraph.Case, error) {
	s.gets.Add(1)
	return s.inner.Get(ctx, caseID)
}

type CacheSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	backing *countingStore
	cached  *casegraph.CachedCaseStore
	ctx     context.Context
}

func TestCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *CacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.backing = &countingStore{inner: casegraph.NewInMemoryCaseStore()}
	s.cached = casegraph.NewCachedCaseStore(s.backing, s.redis.Client, time.Minute, slog.Default())
}

// TestReadThrough verifies the second read is served from the cache.
func (s *CacheSuite) TestReadThrough() {
	s.backing.inner.Put(&casegraph.Case{ID: "case-1", Domain: "alpha", Name: "Cached"})

	first, err := s.cached.Get(s.ctx, "case-1")
	s.Require().NoError(err)
	s.Equal("Cached", first.Name)
	s.Equal(int32(1), s.backing.gets.Load())

	second, err := s.cached.Get(s.ctx, "case-1")
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal(int32(1), s.backing.gets.Load(), "second read must not reach the backing store")
}

// TestMissesAreNotCached verifies a missing case becomes visible as soon as
// the backing store has it.
func (s *CacheSuite) TestMissesAreNotCached() {
	_, err := s.cached.Get(s.ctx, "late-arrival")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.backing.inner.Put(&casegraph.Case{ID: "late-arrival", Domain: "alpha"})

	found, err := s.cached.Get(s.ctx, "late-arrival")
	s.Require().NoError(err)
	s.Equal(id.CaseID("late-arrival"), found.ID)
}

// TestInvalidate verifies explicit invalidation forces a refetch.
func (s *CacheSuite) TestInvalidate() {
	s.backing.inner.Put(&casegraph.Case{ID: "case-2", Domain: "alpha", Name: "v1"})
	_, err := s.cached.Get(s.ctx, "case-2")
	s.Require().NoError(err)

	s.backing.inner.Put(&casegraph.Case{ID: "case-2", Domain: "alpha", Name: "v2"})
	s.Require().NoError(s.cached.Invalidate(s.ctx, "case-2"))

	found, err := s.cached.Get(s.ctx, "case-2")
	s.Require().NoError(err)
	s.Equal("v2", found.Name)
}

// TestHierarchyOverCache verifies the builder works unchanged behind the
// cache decorator.
func (s *CacheSuite) TestHierarchyOverCache() {
	s.backing.inner.Put(&casegraph.Case{
		ID: "root", Domain: "alpha",
		ReverseIndices: []casegraph.CaseIndex{
			{CaseID: "kid", Identifier: "kid-ref", Relationship: "child", ReferencedID: "kid"},
		},
	})
	s.backing.inner.Put(&casegraph.Case{ID: "kid", Domain: "alpha"})

	builder := casegraph.NewBuilder(s.cached)
	result, err := builder.Build(s.ctx, "root")
	s.Require().NoError(err)
	s.Require().Len(result.Entries, 2)

	fetches := s.backing.gets.Load()
	_, err = builder.Build(s.ctx, "root")
	s.Require().NoError(err)
	s.Equal(fetches, s.backing.gets.Load(), "a warm cache serves the whole rebuild")
}
