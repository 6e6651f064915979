// Package errs defines the error taxonomy shared by the bus, router, retry
// executor, and orchestrator. Every failure in the system maps to exactly one
// class, which determines whether it is retried, re-routed, or escalated.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Class partitions failures by how the orchestration core must react.
type Class string

const (
	// ClassTransient failures (timeout, connection refused, no active
	// agent) are retryable with backoff.
	ClassTransient Class = "transient"
	// ClassCircuitOpen failures mean the endpoint is deliberately
	// unavailable; never retried at that endpoint, re-route instead.
	ClassCircuitOpen Class = "circuit_open"
	// ClassValidation failures (malformed message or task) are never
	// retried and surface immediately to the sender.
	ClassValidation Class = "validation"
	// ClassCapability failures come from specialist logic itself; retried
	// up to the task's retry budget, then escalated.
	ClassCapability Class = "capability"
	// ClassFatal failures (store corruption, invariant violation) halt new
	// task admission and surface loudly.
	ClassFatal Class = "fatal"
)

// Sentinel errors for well-known failure conditions.
var (
	// ErrNoActiveAgent indicates no routable endpoint exists for a type.
	// Callers treat this as retryable: an endpoint may be re-registering.
	ErrNoActiveAgent = New(ClassTransient, "NO_ACTIVE_AGENT", "no active agent for recipient type")
	// ErrCircuitOpen indicates the endpoint's breaker rejected the call.
	ErrCircuitOpen = New(ClassCircuitOpen, "CIRCUIT_OPEN", "circuit breaker is open")
	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = New(ClassTransient, "TIMEOUT", "operation timed out")
	// ErrInvalidTransition indicates a task status change the transition
	// graph forbids.
	ErrInvalidTransition = New(ClassValidation, "INVALID_TRANSITION", "illegal task status transition")
	// ErrDependencyCycle indicates a task dependency set that would form a cycle.
	ErrDependencyCycle = New(ClassValidation, "DEPENDENCY_CYCLE", "task dependencies form a cycle")
	// ErrDeadLettered indicates a message exhausted its delivery budget.
	ErrDeadLettered = New(ClassCapability, "DEAD_LETTERED", "message moved to dead letter set")
)

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Class Class
	Code  string
	Msg   string
	Err   error
}

// New creates a classified error.
func New(class Class, code, msg string) *Error {
	return &Error{Class: class, Code: code, Msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(class Class, code, format string, args ...any) *Error {
	return &Error{Class: class, Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(class Class, code string, err error) *Error {
	return &Error{Class: class, Code: code, Msg: err.Error(), Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Msg {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches classified errors by code, so wrapped copies of a sentinel
// compare equal to it under errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// Classify maps any error to its class. Unknown errors are treated as
// capability failures, the conservative default for specialist logic.
func Classify(err error) Class {
	if err == nil {
		return ""
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	return ClassCapability
}

// Retryable reports whether an error belongs to a class the retry executor
// may retry. Only transient failures qualify; circuit-open and validation
// failures never sleep a retry loop.
func Retryable(err error) bool {
	return Classify(err) == ClassTransient
}
