package core

import (
	"sync"

	"github.com/dkeye/skillcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	name   domain.RoomName
	mu     sync.RWMutex
	byConn map[ConnID]Connection
	closed bool
}

func NewRoomService(name domain.RoomName) RoomService {
	return &roomImpl{
		name:   name,
		byConn: make(map[ConnID]Connection),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}

func (r *roomImpl) Has(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConn[id]
	return ok
}

func (r *roomImpl) AddMember(c Connection, capacity int) (bool, error) {
	id := c.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrRoomClosed
	}
	if _, ok := r.byConn[id]; ok {
		return false, nil
	}
	if capacity > 0 && len(r.byConn) >= capacity {
		return false, ErrRoomFull
	}
	r.byConn[id] = c
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("conn", string(id)).Int("members", len(r.byConn)).Msg("member added")
	return true, nil
}

func (r *roomImpl) RemoveMember(id ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byConn[id]; !ok {
		return false
	}
	delete(r.byConn, id)
	log.Info().Str("module", "core.room").Str("room", string(r.name)).Str("conn", string(id)).Int("members", len(r.byConn)).Msg("member removed")
	return true
}

func (r *roomImpl) Targets(exclude ConnID) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Connection, 0, len(r.byConn))
	for id, c := range r.byConn {
		if id == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *roomImpl) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byConn) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.byConn))
	for id, c := range r.byConn {
		dto := MemberDTO{Conn: id}
		if m := c.Meta(); m != nil {
			dto.User = m.User
		}
		out = append(out, dto)
	}
	return out
}
