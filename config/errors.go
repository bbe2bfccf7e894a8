package config

import "errors"

var (
	// ErrUnknownSink is returned when a path spec references a sink id
	// not present in the same desired state.
	ErrUnknownSink = errors.New("config: path references nonexistent sink")
	// ErrDuplicateSinkID is returned when a desired state lists the
	// same sink id twice.
	ErrDuplicateSinkID = errors.New("config: duplicate sink id in desired state")
	// ErrDuplicatePathID is returned when a desired state lists the
	// same path id twice.
	ErrDuplicatePathID = errors.New("config: duplicate path id in desired state")
)
