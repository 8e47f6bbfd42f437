// README: Catalog service resolves routes through the cache and fills missing travel minutes.
package catalog

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"metro/internal/types"
)

type RouteStore interface {
	Get(ctx context.Context, id types.ID) (*Route, error)
	Search(ctx context.Context, f SearchFilter) ([]Route, error)
	SetTravelMinutes(ctx context.Context, id types.ID, minutes int) (int, error)
}

type Service struct {
	store     RouteStore
	cache     *Cache
	estimator Estimator
	log       *zap.Logger
	group     singleflight.Group
}

// NewService wires the catalog. cache may be nil, in which case every lookup hits the store.
func NewService(store RouteStore, cache *Cache, estimator Estimator, log *zap.Logger) *Service {
	if estimator == nil {
		estimator = RandomEstimator{Min: 30, Max: 300}
	}
	return &Service{store: store, cache: cache, estimator: estimator, log: log.Named("catalog")}
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Route, error) {
	if s.cache != nil {
		r, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			s.log.Warn("route cache read failed", zap.String("route_id", string(id)), zap.Error(err))
		} else if ok {
			return r, nil
		}
	}
	v, err, _ := s.group.Do(string(id), func() (interface{}, error) {
		r, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, r); err != nil {
				s.log.Warn("route cache write failed", zap.String("route_id", string(id)), zap.Error(err))
			}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r := *v.(*Route)
	return &r, nil
}

func (s *Service) Search(ctx context.Context, f SearchFilter) ([]Route, error) {
	return s.store.Search(ctx, f)
}

// EnsureTravelMinutes assigns a reference duration to a route that has none.
func (s *Service) EnsureTravelMinutes(ctx context.Context, r *Route) (*Route, error) {
	if r.TravelMinutes > 0 {
		return r, nil
	}
	minutes, err := s.estimator.EstimateMinutes(ctx, r.Origin, r.Destination)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.SetTravelMinutes(ctx, r.ID, minutes)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, r.ID); err != nil {
			s.log.Warn("route cache invalidate failed", zap.String("route_id", string(r.ID)), zap.Error(err))
		}
	}
	s.log.Info("route travel minutes assigned", zap.String("route_id", string(r.ID)), zap.Int("minutes", stored))
	out := *r
	out.TravelMinutes = stored
	return &out, nil
}
