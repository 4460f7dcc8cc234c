// Package repository persists users and device sessions in MySQL. Sentinel
// errors defined here let handlers and services map storage failures onto
// the HTTP error taxonomy without string matching.
package repository

import "errors"

// ErrEmailExists is returned when an insert would violate the unique,
// lower-cased email constraint. Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrNoChange is returned when an update or delete matched no rows, e.g. a
// logout for a session that was already removed. Handlers translate it
// into HTTP 400.
var ErrNoChange = errors.New("no change")
