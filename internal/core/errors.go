package core

import "errors"

var (
	// ErrMalformedFrame is returned by the codec for frames that are too short
	// for their link type or whose inner length fields disagree with the buffer.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrMutationFailure wraps any failure while building or transmitting a
	// synthesized packet.
	ErrMutationFailure = errors.New("mutation failure")

	// ErrDeviceFailure wraps capture device open/start/stop/close errors and
	// abnormal capture termination.
	ErrDeviceFailure = errors.New("device failure")

	// ErrShutdownTimeout is returned when the worker does not exit within the
	// shutdown deadline.
	ErrShutdownTimeout = errors.New("shutdown timeout")
)
