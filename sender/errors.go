package sender

import "errors"

var (
	// ErrClosed is returned by operations attempted on a closed sender.
	ErrClosed = errors.New("sender: closed")
	// ErrFaulted is returned when a sender's device or socket has
	// entered the faulted state after a device or transport error and
	// has not yet recovered.
	ErrFaulted = errors.New("sender: faulted, device or socket unrecoverable")
	// ErrNoDevice indicates a local playback device could not be
	// opened.
	ErrNoDevice = errors.New("sender: no playback device available")
)
