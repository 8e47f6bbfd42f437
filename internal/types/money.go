// README: Common money value object used across modules.
package types

import "fmt"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Add sums two amounts of the same currency. A zero-value Money adopts the other currency.
func (m Money) Add(o Money) (Money, error) {
	switch {
	case m.Currency == "":
		return Money{Amount: m.Amount + o.Amount, Currency: o.Currency}, nil
	case o.Currency == "" || o.Currency == m.Currency:
		return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}, nil
	default:
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, o.Currency)
	}
}
