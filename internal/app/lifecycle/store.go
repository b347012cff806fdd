package lifecycle

import (
	"context"

	"github.com/dkeye/skillcall/internal/domain"
)

// Store is the persistence the manager needs. Implementations must apply
// CreateSession and Transition atomically together with their credit effects.
type Store interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)

	GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	FindSessionByRoom(ctx context.Context, room domain.RoomName) (*domain.Session, error)
	// FindPending returns the learner's open request to teacher, or domain.ErrNotFound.
	FindPending(ctx context.Context, learner, teacher domain.UserID) (*domain.Session, error)
	// CreateSession inserts s after taking hold from the learner's balance.
	CreateSession(ctx context.Context, s *domain.Session, hold int64) error
	// Transition applies t only if the session is still in t.From and returns
	// the updated session; otherwise it fails with domain.ErrInvalidState.
	Transition(ctx context.Context, t domain.Transition) (*domain.Session, error)
	CountPending(ctx context.Context, teacher domain.UserID) (int64, error)
	ListSessions(ctx context.Context, user domain.UserID) ([]domain.Session, error)

	CreateRating(ctx context.Context, r *domain.Rating) error
}

// RoomOpener is the part of the relay the manager drives.
type RoomOpener interface {
	Open(name domain.RoomName, capacity int)
	Close(name domain.RoomName) int
}
