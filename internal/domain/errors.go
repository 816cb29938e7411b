package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrAdmissionDenied     = errors.New("admission denied")
	ErrCapacityUnavailable = errors.New("no provider account available")
	ErrDispatchFailure     = errors.New("provider dispatch failed")
	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrQueueFull           = errors.New("pending queue limit reached")
	ErrStaleTimeout        = errors.New("job timed out waiting for capacity")
	ErrInvalidTransition   = errors.New("invalid status transition")
)
