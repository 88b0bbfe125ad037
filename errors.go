package waybridge

import "errors"

// Bridge-level errors.
var (
	// ErrAlreadyRunning is returned by Run if called more than once on the
	// same Bridge.
	ErrAlreadyRunning = errors.New("waybridge: already running")

	// ErrClosed is returned by operations attempted after Close.
	ErrClosed = errors.New("waybridge: bridge closed")

	// ErrNoXServer is returned when connecting to the windowing server
	// fails.
	ErrNoXServer = errors.New("waybridge: no windowing server connection")
)
