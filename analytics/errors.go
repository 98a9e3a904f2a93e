package analytics

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StoreError reports a store rejection that no fallback could recover.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("analytics: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

var hundred = decimal.NewFromInt(100)

// percent returns num/den*100 rounded half away from zero to two places, or 0
// when den is 0.
func percent(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(num)).Mul(hundred).
		Div(decimal.NewFromInt(int64(den))).
		Round(2).
		InexactFloat64()
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
