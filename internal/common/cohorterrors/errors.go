// Package cohorterrors contains the error types returned by the assignment
// engine. HTTP handlers look for these types (via errors.As, so wrapped chains
// are fine) and set the response status accordingly.
//
// Note that a user being ineligible for an experiment is not an error anywhere
// in this codebase; it is a successful "no assignment" outcome.
package cohorterrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/cohortproject/cohort/internal/cohort/domain"
)

// ErrExperimentNotFound indicates the requested experiment does not exist in
// the registry.
type ErrExperimentNotFound struct {
	ExperimentId string
}

func (err *ErrExperimentNotFound) Error() string {
	return fmt.Sprintf("experiment %q does not exist", err.ExperimentId)
}

// ErrExperimentNotRunning indicates the experiment exists but is not accepting
// assignments in its current lifecycle state.
type ErrExperimentNotRunning struct {
	ExperimentId string
	Status       domain.ExperimentStatus
}

func (err *ErrExperimentNotRunning) Error() string {
	return fmt.Sprintf("experiment %q is not accepting assignments; status is %s", err.ExperimentId, err.Status)
}

// ErrStoreUnavailable indicates a transient storage failure (timeout or the
// backend being unreachable). Callers may safely retry; assignment creation
// is idempotent.
type ErrStoreUnavailable struct {
	Message string
	Cause   error
}

func (err *ErrStoreUnavailable) Error() (s string) {
	s = "assignment store unavailable"
	if err.Message != "" {
		s += "; " + err.Message
	}
	if err.Cause != nil {
		s += fmt.Sprintf(": %v", err.Cause)
	}
	return
}

func (err *ErrStoreUnavailable) Unwrap() error {
	return err.Cause
}

// ErrInvalidArgument is returned on malformed request input, e.g., an empty
// user id or an unparseable request body.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "userId"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %q is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %q is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// HTTPStatusFromError maps error types to HTTP response codes.
// Uses errors.As to look through the chain of errors, as opposed to just
// considering the topmost error in the chain.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	{
		var e *ErrExperimentNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrExperimentNotRunning
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrStoreUnavailable
		if errors.As(err, &e) {
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}
