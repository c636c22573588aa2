package model

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrStorageIO         = errors.New("storage i/o failure")
	ErrIntegrity         = errors.New("integrity violation")
	ErrExternalService   = errors.New("external service failure")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("access denied")
	ErrInvalidTransition = errors.New("invalid status transition")
)
