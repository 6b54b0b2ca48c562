package core

import "errors"

// Error taxonomy shared across the narration pipeline.
var (
	// ErrUnsupportedCapability indicates the realtime speech capability is
	// absent on this host.
	ErrUnsupportedCapability = errors.New("speech capability not supported on this host")
	// ErrBackendFailure indicates the networked synthesis backend returned a
	// non-success result.
	ErrBackendFailure = errors.New("speech backend failure")
	// ErrCacheWrite indicates the durable cache tier could not be written.
	// Non-fatal: the hot tier still serves the session.
	ErrCacheWrite = errors.New("durable cache write failed")
	// ErrPersistence indicates a remote audio upload, download or delete
	// failed.
	ErrPersistence = errors.New("remote audio persistence failed")
	// ErrDecode indicates a malformed structured audio payload.
	ErrDecode = errors.New("malformed audio payload")
	// ErrNotFound indicates an absent key in a store.
	ErrNotFound = errors.New("not found")
)
