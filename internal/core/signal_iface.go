package core

import (
	"context"

	"github.com/dkeye/skillcall/internal/domain"
)

// Frame is an opaque signaling payload (offer, answer, candidate, ...).
// The relay never looks inside.
type Frame []byte

type ConnID string

//go:generate mockgen -destination=coremock/connection.go -package=coremock . Connection

// Connection abstracts a bidirectional signaling transport endpoint.
// Owned by the adapter; Close must be idempotent.
type Connection interface {
	ID() ConnID
	Meta() *domain.Member
	// Send queues f for delivery, giving up when ctx is done.
	Send(ctx context.Context, f Frame) error
	Close()
}
