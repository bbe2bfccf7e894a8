package engine

import "errors"

var (
	// ErrSinkExists is returned when creating a sink id already present.
	ErrSinkExists = errors.New("engine: sink already exists")
	// ErrSinkNotFound is returned by operations on an unknown sink id.
	ErrSinkNotFound = errors.New("engine: sink not found")
	// ErrPathExists is returned when creating a path id already present.
	ErrPathExists = errors.New("engine: path already exists")
	// ErrPathNotFound is returned by operations on an unknown path id.
	ErrPathNotFound = errors.New("engine: path not found")
	// ErrUnknownProtocol is returned when a sink spec names a protocol
	// this engine does not implement.
	ErrUnknownProtocol = errors.New("engine: unknown sink protocol")
	// ErrNotWebRTCSink is returned by the WebRTC signaling passthroughs
	// when the named sink is not a webrtc sink.
	ErrNotWebRTCSink = errors.New("engine: sink is not a webrtc sink")
	// ErrReceiverExists is returned when adding a receiver id already
	// registered.
	ErrReceiverExists = errors.New("engine: receiver already exists")
	// ErrReceiverNotFound is returned by operations on an unknown
	// receiver id.
	ErrReceiverNotFound = errors.New("engine: receiver not found")
)
