// Package errors carries the structured error shape the dashboard's JSON
// API speaks: an HTTP status, a wrapped cause, and optional field details.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error is what the API returns when something fails.
type Error struct {
	Status  int
	Err     error // The error this wraps
	Details []Detail
}

// Detail points at the part of a request that was wrong.
type Detail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s, details: %v", e.Status, e.Err, e.Details)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Message string   `json:"message"`
		Details []Detail `json:"details"`
		Status  int      `json:"status"`
	}{
		Message: e.Err.Error(),
		Details: e.Details,
		Status:  e.Status,
	})
}

// E assembles an Error from whatever it's handed: a string or error for
// the cause, an int for the status, Detail values for field errors.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		case Detail:
			ret.Details = append(ret.Details, arg)
		case []Detail:
			ret.Details = append(ret.Details, arg...)
		}
	}

	return ret
}
