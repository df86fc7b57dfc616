package store

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func decimalFromString(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return v, nil
}
