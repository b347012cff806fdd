package core

import "errors"

var (
	// ErrDeliveryFailure marks a send that did not reach the connection.
	// It never leaves the relay except as a log line or a Unicast result.
	ErrDeliveryFailure = errors.New("delivery failure")
	ErrRoomFull        = errors.New("room full")
	ErrRoomClosed      = errors.New("room closed")
	// ErrAlreadyBound is returned when a connection tries to join a second room.
	ErrAlreadyBound = errors.New("connection bound to another room")
)
