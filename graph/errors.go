//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"errors"
	"fmt"
	"time"
)

// Errors.
var (
	ErrNoRoute         = errors.New("no route")
	ErrUnknownPosition = errors.New("unknown execution position")
	ErrStateRequired   = errors.New("state is required")
)

// RetryExhaustedError reports that a step failed transiently on every
// allowed attempt. It is not fatal: the executor proceeds with the step's
// best-effort fallback, or without its output.
type RetryExhaustedError struct {
	Step     Step
	Attempts int
	Err      error
}

// Error returns the error message.
func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempts: %v", e.Step, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error.
func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// IsRetryExhausted checks whether an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var re *RetryExhaustedError
	return errors.As(err, &re)
}

// InterruptError signals that execution suspended at an interrupt step.
// The session is checkpointed before the error is returned, so callers
// can hand the partial result to the delivery side and resume later.
type InterruptError struct {
	// SessionID is the suspended session.
	SessionID string
	// Step is the interrupt step execution stopped at.
	Step Step
	// Timestamp is when the suspension happened.
	Timestamp time.Time
}

// Error returns the error message for the interrupt.
func (e *InterruptError) Error() string {
	return fmt.Sprintf("execution suspended at step %s for session %s", e.Step, e.SessionID)
}

// NewInterruptError creates an InterruptError for the given session and step.
func NewInterruptError(sessionID string, step Step) *InterruptError {
	return &InterruptError{SessionID: sessionID, Step: step, Timestamp: time.Now().UTC()}
}

// IsInterruptError checks whether an error is an InterruptError.
func IsInterruptError(err error) bool {
	var ie *InterruptError
	return errors.As(err, &ie)
}

// GetInterruptError extracts an InterruptError from an error chain.
func GetInterruptError(err error) (*InterruptError, bool) {
	var ie *InterruptError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
