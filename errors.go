package rbac

import "errors"

// Custom errors
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("resource not found")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMalformedPermission is returned for permission codes with fewer than
	// two segments or unknown data level / scope segments.
	ErrMalformedPermission = errors.New("malformed permission code")

	// ErrCacheMiss is returned by a CacheStore when no usable entry exists.
	ErrCacheMiss = errors.New("permission cache miss")
)
