package registry

import "errors"

var (
	ErrNilConnection    = errors.New("connection is nil")
	ErrNotAuthenticated = errors.New("connection is not authenticated")
	ErrShutdown         = errors.New("registry is shut down")
)
