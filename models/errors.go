package models

import (
	"errors"
	"fmt"
)

// ErrListingNotFound is matched by every error reporting a missing listing.
var ErrListingNotFound = errors.New("listing not found")

// ListingNotFoundError carries the id that did not resolve.
type ListingNotFoundError struct {
	ID int64
}

func (e *ListingNotFoundError) Error() string {
	return fmt.Sprintf("listing %d not found", e.ID)
}

func (e *ListingNotFoundError) Is(target error) bool {
	return target == ErrListingNotFound
}

// NotFound builds the error returned for an unknown listing id.
func NotFound(id int64) error {
	return &ListingNotFoundError{ID: id}
}

// ValidationError reports a required field that is missing or has the wrong type.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}
