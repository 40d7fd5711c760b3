package services

import "errors"

var (
	// ErrInsufficientBalance is returned when a payment exceeds the spendable
	// balance, i.e. the balance net of the ledger reserve for XLM.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAccountNotFound is returned when the source account does not exist
	// on the ledger, so no transaction can be built for it.
	ErrAccountNotFound = errors.New("account not found on the ledger")
)
