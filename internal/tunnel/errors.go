package tunnel

import "errors"

// Sentinel errors surfaced to callers, mirroring the flat
// errors.go convention used across the service layer.
var (
	ErrNotFound       = errors.New("tunnel: not found")
	ErrPathEscape     = errors.New("tunnel: file path escapes library root")
	ErrNotRegularFile = errors.New("tunnel: not a regular file")
	ErrFileNotFound   = errors.New("tunnel: file not found")
	ErrIDExhausted    = errors.New("tunnel: could not allocate a unique tunnel id")
	ErrEdgeProvision  = errors.New("tunnel: edge provisioning failed")
)
