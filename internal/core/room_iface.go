package core

import (
	"github.com/dkeye/skillcall/internal/domain"
)

// PublishResult reports delivery stats of one broadcast.
type PublishResult struct {
	SentTo  int
	Dropped []Connection
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	Conn ConnID        `json:"conn"`
	User domain.UserID `json:"user"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int
	MembersSnapshot() []MemberDTO
	Has(id ConnID) bool

	// AddMember registers c. capacity <= 0 means unbounded. Adding a member
	// that is already present reports added == false and no error.
	AddMember(c Connection, capacity int) (added bool, err error)
	// RemoveMember reports whether id was present.
	RemoveMember(id ConnID) bool
	// Targets snapshots every member except exclude, for fan-out outside the lock.
	Targets(exclude ConnID) []Connection
	// CloseIfEmpty retires an empty room so later joins go to a fresh one.
	CloseIfEmpty() bool
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
	Capacity    int             `json:"capacity,omitempty"`
}
