package domain

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

const codespace = "domain"

var (
	ErrUnauthorized  = errorsmod.Register(codespace, 2, "unauthorized")
	ErrZeroAddress   = errorsmod.Register(codespace, 3, "zero address")
	ErrInvalidAmount = errorsmod.Register(codespace, 4, "invalid amount")
	ErrInvalidBps    = errorsmod.Register(codespace, 5, "basis points out of range")
)

// UnauthorizedError names the capability that was required and who asked.
type UnauthorizedError struct {
	Role   Role
	Caller Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: caller %q lacks role %s", e.Caller, e.Role)
}

func (e *UnauthorizedError) Unwrap() error {
	return ErrUnauthorized
}
