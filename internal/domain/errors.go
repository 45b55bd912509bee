// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates caller input that cannot be stored or processed.
var ErrValidation = errors.New("validation error")

// ErrMalformed indicates a stored value that a converter could not decode.
var ErrMalformed = errors.New("malformed value")
