package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the principal lacks the required access.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated indicates no identity was supplied for the request.
	ErrUnauthenticated = errors.New("unauthenticated")
)
