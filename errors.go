package acme

import "errors"

var (
	// ErrCollectionNotFound is returned by a store when no collection
	// exists for an identifier. A first issuance hits this path normally.
	ErrCollectionNotFound = errors.New("acme: certificate collection not found")

	// ErrUnknownSolver is returned when configuration names a solver no
	// constructor is registered for.
	ErrUnknownSolver = errors.New("acme: unknown solver")
)
