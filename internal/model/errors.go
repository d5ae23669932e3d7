package model

import "errors"

var (
	// ErrDataUnavailable means the upstream fetch failed or returned no bars.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInvalidInput covers malformed configuration and non-finite or non-positive prices.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSinkDelivery marks a notification sink failure.
	ErrSinkDelivery = errors.New("sink delivery failed")
)
