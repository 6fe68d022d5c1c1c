package domain

import "errors"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrStateConflict   = errors.New("order already in a conflicting terminal state")

	ErrUnknownToken   = errors.New("unknown download token")
	ErrGrantExpired   = errors.New("download link has expired")
	ErrQuotaExhausted = errors.New("download limit reached")

	ErrInvalidSignature          = errors.New("invalid payment signature")
	ErrExternalValidationFailed  = errors.New("payment validation with gateway failed")
	ErrMissingNotificationFields = errors.New("payment notification is missing required fields")
)
