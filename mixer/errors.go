package mixer

import "errors"

var (
	// ErrLaneExists is returned when adding a path lane that is already
	// registered.
	ErrLaneExists = errors.New("mixer: lane already exists")
	// ErrLaneNotFound is returned when removing or writing to a lane
	// that is not registered.
	ErrLaneNotFound = errors.New("mixer: lane not found")
	// ErrMixerClosed names the closed-mixer condition. No Mixer method
	// returns it: operations after Close are not rejected.
	ErrMixerClosed = errors.New("mixer: mixer closed")
)
