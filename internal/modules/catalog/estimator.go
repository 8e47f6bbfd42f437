// README: Travel-minutes estimators used to fill a route's missing reference duration.
package catalog

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"googlemaps.github.io/maps"
)

type Estimator interface {
	EstimateMinutes(ctx context.Context, origin, destination string) (int, error)
}

// MapsEstimator asks the Google Maps Directions API for a transit estimate.
type MapsEstimator struct {
	client *maps.Client
}

func NewMapsEstimator(apiKey string) (*MapsEstimator, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &MapsEstimator{client: client}, nil
}

func (e *MapsEstimator) EstimateMinutes(ctx context.Context, origin, destination string) (int, error) {
	routes, _, err := e.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        maps.TravelModeTransit,
	})
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found from %q to %q", origin, destination)
	}
	minutes := int(math.Ceil(routes[0].Legs[0].Duration.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return minutes, nil
}

// RandomEstimator draws uniformly from [Min, Max].
type RandomEstimator struct {
	Min, Max int
}

func (e RandomEstimator) EstimateMinutes(context.Context, string, string) (int, error) {
	if e.Max < e.Min || e.Min < 1 {
		return 0, fmt.Errorf("bad estimator range [%d,%d]", e.Min, e.Max)
	}
	return e.Min + rand.IntN(e.Max-e.Min+1), nil
}

// FallbackEstimator tries Primary and falls back to Secondary on error.
type FallbackEstimator struct {
	Primary   Estimator
	Secondary Estimator
}

func (e FallbackEstimator) EstimateMinutes(ctx context.Context, origin, destination string) (int, error) {
	if e.Primary != nil {
		if m, err := e.Primary.EstimateMinutes(ctx, origin, destination); err == nil {
			return m, nil
		}
	}
	return e.Secondary.EstimateMinutes(ctx, origin, destination)
}
