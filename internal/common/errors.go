// Package common defines sentinel errors shared by the repository, service
// and storage layers of audiokeeper. Callers should use errors.Is to match
// these values; wrapped errors keep the sentinel reachable.
package common

import "errors"

var (
	// Repository and storage errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Authentication and authorization. Every credential or token failure is
	// reported as ErrorUnauthenticated, whatever check rejected it.
	ErrorUnauthenticated = errors.New("unauthenticated")
	ErrorForbidden       = errors.New("forbidden")

	// Caller input.
	ErrorBadRequest = errors.New("bad request")

	// External identity provider.
	ErrorUpstream          = errors.New("identity provider error")
	ErrorIncompleteProfile = errors.New("identity provider profile has no email")

	ErrorInternal = errors.New("internal error")
)
