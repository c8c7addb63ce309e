package model

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrUnknownService is returned when a caller references a service ID
	// that is not in the configured routing table. Never retried.
	ErrUnknownService = goerr.New("unknown service")

	// ErrTransientFailure marks a failed exchange that may succeed on retry:
	// timeout, connection error, malformed or failed response.
	ErrTransientFailure = goerr.New("transient service failure")

	// ErrServiceUnavailable is returned after the retry budget for a call is
	// exhausted. The endpoint is marked unavailable as a side effect.
	ErrServiceUnavailable = goerr.New("service unavailable")

	// ErrDimensionMismatch indicates an embedding whose length differs from
	// the dimension established by the vector index. Caller bug, never retried.
	ErrDimensionMismatch = goerr.New("embedding dimension mismatch")

	// ErrRecordNotFound indicates a record ID with no backing row.
	ErrRecordNotFound = goerr.New("memory record not found")

	// ErrEmptyPrompt rejects memory records without prompt text.
	ErrEmptyPrompt = goerr.New("prompt is empty")
)
