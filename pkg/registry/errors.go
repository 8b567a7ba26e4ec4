package registry

import "errors"

var (
	ErrAlreadyRegistered = errors.New("registry: child already registered")
	ErrNotFound          = errors.New("registry: child not found")
)
