//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

package capability

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Class partitions capability failures for the executor's retry policy.
type Class int

const (
	// ClassRetryable marks transient failures: timeouts, flaky transport,
	// rate limits. They consume retry budget and are re-attempted.
	ClassRetryable Class = iota
	// ClassFatal marks failures that retrying cannot fix: malformed input
	// or a misconfigured capability. They abort the session immediately.
	ClassFatal
)

// String returns the class name.
func (c Class) String() string {
	if c == ClassFatal {
		return "fatal"
	}
	return "retryable"
}

// Error is a classified capability failure.
type Error struct {
	Class Class
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("capability failure (%s): %v", e.Class, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a transient capability failure.
func Retryable(err error) *Error { return &Error{Class: ClassRetryable, Err: err} }

// Fatal wraps err as an unrecoverable capability failure.
func Fatal(err error) *Error { return &Error{Class: ClassFatal, Err: err} }

// ClassOf classifies an arbitrary error. Explicit classifications win;
// everything unclassified is treated as transient because capability
// transport is assumed flaky. Only an explicit Fatal aborts a session.
func ClassOf(err error) Class {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Class
	}
	return ClassRetryable
}

// Timeout reports whether err is a deadline or network timeout, the
// baseline transient condition implementations should classify retryable.
func Timeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsFatal reports whether err is classified fatal.
func IsFatal(err error) bool {
	return err != nil && ClassOf(err) == ClassFatal
}
