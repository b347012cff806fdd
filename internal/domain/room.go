package domain

import (
	"strings"

	"github.com/google/uuid"
)

const roomSaltLen = 10

type RoomName string

// NewRoomName derives the room for a session. The result depends only on its
// inputs, so a participant who lost the transport reconnects to the same room.
func NewRoomName(prefix string, id SessionID, salt string) RoomName {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(string(id))
	if salt != "" {
		b.WriteByte('_')
		b.WriteString(salt)
	}
	return RoomName(b.String())
}

// NewRoomSalt returns a short random suffix that makes room names unguessable.
func NewRoomSalt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:roomSaltLen]
}
