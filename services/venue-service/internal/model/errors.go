package model

import "errors"

// Caller facing failures. Each one is recoverable: the caller reads fresh state
// and decides whether to retry.
var (
	ErrInvalidTransition      = errors.New("transition not allowed from current status")
	ErrInvalidState           = errors.New("occurrence is not in a state that allows this change")
	ErrTooEarly               = errors.New("scheduled end time has not passed yet")
	ErrOverlapConflict        = errors.New("court is already booked for an overlapping time")
	ErrInsufficientStock      = errors.New("not enough stock")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrOutstandingBalance     = errors.New("outstanding balance remains")
	ErrConcurrentModification = errors.New("occurrence was modified concurrently")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
)
