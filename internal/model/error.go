package model

import "errors"

// Error definitions for the model package.
var (
	ErrModelNotConfigured = errors.New("no model path configured")
	ErrModelNotFound      = errors.New("model not found")
)
