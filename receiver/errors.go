package receiver

import "errors"

var (
	ErrClosed          = errors.New("receiver: closed")
	ErrMalformedPacket = errors.New("receiver: malformed packet")
	ErrDepositRejected = errors.New("receiver: timeshift buffer rejected packet")
)
