// Package analytics derives aging and fulfillment reports from journal and
// allocation data.
package analytics

import (
	"context"
	"time"

	"github.com/tokoflow/tokoflow/internal/platform/cache"
)

// Repository abstracts the aggregation queries.
type Repository interface {
	OpenBalancesByReference(ctx context.Context, asOf time.Time, receivable bool) ([]AgingRow, error)
	OpenBackordersByProduct(ctx context.Context) ([]BackorderRow, error)
}

// Service serves analytics reports, optionally cached.
type Service struct {
	repo  Repository
	cache *cache.Cache
	now   func() time.Time
}

// NewService builds Service. c may be nil to disable caching.
func NewService(repo Repository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) cached(ctx context.Context, keyParts []string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	key, err := s.cache.BuildKey(ctx, append([]string{"analytics"}, keyParts...)...)
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}
