package util

import "errors"

var (
	ErrContentNotFound = errors.New("module has no processable content")

	ErrUpsertFailed       = errors.New("chunk index upsert failed")
	ErrInsufficientOutput = errors.New("fewer cards than viable minimum")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
)
