package domain

import "errors"

var (
	// ErrQuotaExhausted means the user has no views left until the next reset.
	ErrQuotaExhausted = errors.New("daily view quota exhausted, come back after reset")
	// ErrBoxNotFound covers both a missing box and a box owned by someone else.
	ErrBoxNotFound         = errors.New("treasure box not found")
	ErrBoxAlreadyOpened    = errors.New("treasure box already opened")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)
