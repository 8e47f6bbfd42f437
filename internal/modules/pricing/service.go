// README: Pricing computes fare quotes for a list of legs.
package pricing

import (
	"fmt"

	"metro/internal/types"
)

// NewQuote sums the prices of paid items. Free items appear in the breakdown
// with a zero amount. All prices must share the quote currency.
func NewQuote(currency string, items []Item) (Quote, error) {
	q := Quote{Total: types.Money{Currency: currency}, Breakdown: make([]Line, 0, len(items))}
	for _, it := range items {
		line := Line{Label: it.Label, Free: it.Free, Amount: types.Money{Currency: currency}}
		if !it.Free {
			if it.Price.Amount < 0 {
				return Quote{}, fmt.Errorf("negative price for %s", it.Label)
			}
			total, err := q.Total.Add(it.Price)
			if err != nil {
				return Quote{}, fmt.Errorf("price %s: %w", it.Label, err)
			}
			q.Total = total
			line.Amount = it.Price
		}
		q.Breakdown = append(q.Breakdown, line)
	}
	return q, nil
}
