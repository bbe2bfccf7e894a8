package timeshift

import "errors"

// Sentinel errors for timeshift package operations, enabling reliable
// classification with errors.Is().
var (
	// ErrUnderrun indicates a cursor's requested position is beyond
	// the newest buffered packet for its tag.
	ErrUnderrun = errors.New("timeshift: underrun, no data at cursor position")

	// ErrUnknownCursor indicates an operation referenced a cursor
	// handle that was never registered or has since been unregistered.
	ErrUnknownCursor = errors.New("timeshift: unknown cursor handle")

	// ErrEmptyPartition indicates export_window was called for a tag
	// with no buffered packets at all.
	ErrEmptyPartition = errors.New("timeshift: no buffered packets for tag")

	// ErrManagerClosed indicates an operation was attempted after the
	// manager's cleanup loop was stopped.
	ErrManagerClosed = errors.New("timeshift: manager is closed")
)
