package domain

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrAmountNotNumeric    = errors.New("amount is not numeric")
	ErrAmountNotPositive   = errors.New("amount must be greater than zero")
	ErrAmountTooPrecise    = errors.New("amount must have at most two decimal places")
	ErrInsufficientBalance = errors.New("amount exceeds available balance")
)

// ParseAmount parses a user-supplied amount string and enforces the monetary
// shape: positive, at most two decimal places.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrAmountNotNumeric
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateAmount checks the monetary invariants on an already-parsed amount.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrAmountNotPositive
	}
	if !d.Equal(d.Round(2)) {
		return ErrAmountTooPrecise
	}
	return nil
}

// CheckFunds verifies the amount does not exceed the available balance.
func CheckFunds(amount, available decimal.Decimal) error {
	if amount.GreaterThan(available) {
		return ErrInsufficientBalance
	}
	return nil
}
