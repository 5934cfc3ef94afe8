package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")

	ErrUnknownKind   = errors.New("unknown job kind")
	ErrEmptyToken    = errors.New("start response carried no token")
	ErrTokenReused   = errors.New("job token already used")
	ErrJobFailed     = errors.New("job reported an error")
	ErrEmptyResult   = errors.New("Something was wrong, please try again")
	ErrPollExhausted = errors.New("poll retries exhausted")
	ErrUnauthorized  = errors.New("session rejected by server")
	ErrCancelled     = errors.New("job cancelled")
	ErrSuperseded    = errors.New("superseded by a newer job in the slot")
)
