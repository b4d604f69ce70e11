package practicum

import "fmt"

// TransportError means the homework API could not be reached or answered
// with a non-200 status. StatusCode is 0 when the network call itself failed.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("practicum: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("practicum: request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ShapeError means the API answered 200 but the body does not have the
// documented structure.
type ShapeError struct {
	Reason string
}

func (e *ShapeError) Error() string {
	return "practicum: malformed response: " + e.Reason
}

// MissingFieldError means a homework record lacks a required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("practicum: homework record has no %q", e.Field)
}

// UnknownStatusError means a homework record carries a status code outside
// the documented set.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("practicum: undocumented homework status %q", e.Status)
}
