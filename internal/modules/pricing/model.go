// README: Fare quote definitions.
package pricing

import "metro/internal/types"

// Item is one priced leg of a trip.
type Item struct {
	Label string
	Price types.Money
	Free  bool
}

// Line is the charge for one item in a quote.
type Line struct {
	Label  string      `json:"label"`
	Amount types.Money `json:"amount"`
	Free   bool        `json:"free"`
}

type Quote struct {
	Total     types.Money `json:"total"`
	Breakdown []Line      `json:"breakdown"`
}
