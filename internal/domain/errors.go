package domain

import "github.com/pkg/errors"

var (
	// ErrPriceUnknown no usable price sample is available.
	ErrPriceUnknown = errors.New("price is unknown")
	// ErrInvalidAmount trade amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInsufficientFunds trade amount exceeds the available balance.
	ErrInsufficientFunds = errors.New("insufficient balance")
	// ErrNotReady persisted state has not been loaded yet.
	ErrNotReady = errors.New("portfolio is not hydrated yet")
)

// IsRejection reports whether err is an expected business rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrPriceUnknown) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds)
}
