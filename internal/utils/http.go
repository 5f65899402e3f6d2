package utils

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"

	"github.com/aristath/givevault/internal/domain"
	"github.com/aristath/givevault/internal/state"
)

// CallerHeader carries the identity an HTTP request acts as
const CallerHeader = "X-Caller"

// Caller returns the address named by the X-Caller header
func Caller(r *http.Request) domain.Address {
	return domain.Address(strings.TrimSpace(r.Header.Get(CallerHeader)))
}

// ParseAmount parses a non-negative decimal integer amount
func ParseAmount(s string) (sdkmath.Int, error) {
	s = strings.TrimSpace(s)
	amount, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid amount %q", s)
	}
	if amount.IsNegative() {
		return sdkmath.Int{}, fmt.Errorf("negative amount %q", s)
	}
	return amount, nil
}

// HTTPStatus maps a domain error to a response status. Authorization
// failures are 403, reentrancy is 409, other registered codes are 422 and
// anything unregistered is a 500.
func HTTPStatus(err error) int {
	var unauthorized *domain.UnauthorizedError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &unauthorized):
		return http.StatusForbidden
	case errors.Is(err, state.ErrReentrantCall):
		return http.StatusConflict
	}
	var registered *errorsmod.Error
	if errors.As(err, &registered) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
