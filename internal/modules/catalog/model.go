// README: Route catalog reference data.
package catalog

import (
	"metro/internal/types"
)

type Route struct {
	ID          types.ID    `json:"id"`
	Origin      string      `json:"origin"`
	Destination string      `json:"destination"`
	Description string      `json:"description"`
	Price       types.Money `json:"price"`
	Active      bool        `json:"active"`
	// TravelMinutes is the reference duration; 0 means not assigned yet.
	TravelMinutes int     `json:"travel_minutes"`
	Thumbnail     *string `json:"thumbnail,omitempty"`
}

func (r Route) Label() string {
	return r.Origin + " → " + r.Destination
}

type SearchFilter struct {
	Origin      string
	Destination string
}
