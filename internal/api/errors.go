package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotReady marks a non-2xx artifact response: the file is not available yet.
var ErrNotReady = errors.New("artifact not ready")

// ErrMalformedResponse is returned when a 2xx body does not match the contract.
var ErrMalformedResponse = errors.New("malformed response")

// ProgressValueError is returned when a 2xx progress response carries a
// value that is not a number.
type ProgressValueError struct {
	Raw string
}

func (e *ProgressValueError) Error() string {
	return "progress is not a number: " + e.Raw
}

// SubmissionError is returned when the server rejects a job or the request fails.
type SubmissionError struct {
	Status int    // HTTP status; 0 when the request never got a response
	Detail string // server-supplied detail, if any
	Err    error  // transport or decoding error, if any
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Err != nil:
		return e.Err.Error()
	case e.Status != 0:
		return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	default:
		return "submission failed"
	}
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// StatusError describes an unexpected HTTP status for a non-submit operation.
type StatusError struct {
	Op     string
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error { return e.Err }
