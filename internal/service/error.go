package service

import "errors"

// Error definitions for the service package.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrServiceUnavailable = errors.New("model is not loaded")
	ErrGenerationFault    = errors.New("generation failed")
	ErrGenerationActive   = errors.New("generation in progress")
)
