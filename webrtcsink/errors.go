package webrtcsink

import "errors"

var (
	// ErrListenerExists is returned when adding a listener id already
	// registered on this sink.
	ErrListenerExists = errors.New("webrtcsink: listener already exists")
	// ErrListenerNotFound is returned by operations on an unknown
	// listener id.
	ErrListenerNotFound = errors.New("webrtcsink: listener not found")
	// ErrNegotiationTimeout is returned when ICE gathering for the
	// answer does not complete within Config.OfferTimeout.
	ErrNegotiationTimeout = errors.New("webrtcsink: negotiation timed out")
)
