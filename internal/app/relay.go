package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// DefaultSendTimeout bounds one delivery when RelayConfig leaves it unset.
const DefaultSendTimeout = 2 * time.Second

type RelayConfig struct {
	// SendTimeout bounds a single delivery so one stalled member cannot
	// hold up the others.
	SendTimeout time.Duration
	Policy      Policy
}

// Relay is the owned registry of signaling rooms. Rooms appear on first join
// and disappear with their last member; callers only see the narrow
// join/leave/broadcast/unicast surface.
type Relay struct {
	mu       sync.RWMutex
	rooms    map[domain.RoomName]core.RoomService
	limits   map[domain.RoomName]int
	bindings map[core.ConnID]domain.RoomName

	sendTimeout time.Duration
	policy      Policy
}

func NewRelay(cfg RelayConfig) *Relay {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Policy == nil {
		cfg.Policy = SimplePolicy{}
	}
	return &Relay{
		rooms:       make(map[domain.RoomName]core.RoomService),
		limits:      make(map[domain.RoomName]int),
		bindings:    make(map[core.ConnID]domain.RoomName),
		sendTimeout: cfg.SendTimeout,
		policy:      cfg.Policy,
	}
}

// Open registers the capacity of a room ahead of its first join.
// capacity <= 0 removes the limit.
func (r *Relay) Open(name domain.RoomName, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if capacity <= 0 {
		delete(r.limits, name)
	} else {
		r.limits[name] = capacity
	}
	log.Info().Str("module", "app.relay").Str("room", string(name)).Int("capacity", capacity).Msg("room opened")
}

// Close drops the room's capacity and evicts whoever is still connected.
// It returns the number of evicted connections.
func (r *Relay) Close(name domain.RoomName) int {
	r.mu.Lock()
	delete(r.limits, name)
	room, ok := r.rooms[name]
	r.mu.Unlock()
	if !ok {
		return 0
	}
	members := room.Targets("")
	for _, c := range members {
		r.Leave(name, c.ID())
		c.Close()
	}
	log.Info().Str("module", "app.relay").Str("room", string(name)).Int("evicted", len(members)).Msg("room closed")
	return len(members)
}

// Join registers conn under name, creating the room if needed. Joining the
// same room twice is a no-op.
func (r *Relay) Join(name domain.RoomName, conn core.Connection) error {
	id := conn.ID()
	for {
		r.mu.Lock()
		if bound, ok := r.bindings[id]; ok && bound != name {
			r.mu.Unlock()
			return fmt.Errorf("join %s: %w (%s)", name, core.ErrAlreadyBound, bound)
		}
		room, ok := r.rooms[name]
		if !ok {
			room = core.NewRoomService(name)
			r.rooms[name] = room
		}
		capacity := r.limits[name]
		r.mu.Unlock()

		_, err := room.AddMember(conn, capacity)
		if errors.Is(err, core.ErrRoomClosed) {
			// Lost a race with the last member leaving; the room is gone.
			continue
		}
		if err != nil {
			r.collect(name, room)
			return fmt.Errorf("join %s: %w", name, err)
		}

		r.mu.Lock()
		r.bindings[id] = name
		r.mu.Unlock()
		return nil
	}
}

// Leave removes conn from the room and deletes the room once empty.
// Leaving a room one is not in is not an error.
func (r *Relay) Leave(name domain.RoomName, id core.ConnID) {
	r.mu.Lock()
	if bound, ok := r.bindings[id]; ok && bound == name {
		delete(r.bindings, id)
	}
	room, ok := r.rooms[name]
	r.mu.Unlock()
	if !ok {
		return
	}
	if room.RemoveMember(id) {
		r.collect(name, room)
	}
}

// collect deletes room from the registry if it is still the registered one
// and has no members left.
func (r *Relay) collect(name domain.RoomName, room core.RoomService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[name] != room {
		return
	}
	if room.CloseIfEmpty() {
		delete(r.rooms, name)
		log.Info().Str("module", "app.relay").Str("room", string(name)).Msg("room removed")
	}
}

// Broadcast sends f to every member of name except exclude. Members that
// cannot be reached are handed to the policy; they never stop delivery to
// the rest. A missing room is a silent no-op.
func (r *Relay) Broadcast(ctx context.Context, name domain.RoomName, f core.Frame, exclude core.ConnID) core.PublishResult {
	room, ok := r.room(name)
	if !ok {
		return core.PublishResult{}
	}
	targets := room.Targets(exclude)

	var (
		wg      conc.WaitGroup
		sent    atomic.Int64
		mu      sync.Mutex
		dropped []core.Connection
		reasons = make(map[core.ConnID]error)
	)
	for _, c := range targets {
		wg.Go(func() {
			if err := r.send(ctx, c, f); err != nil {
				mu.Lock()
				dropped = append(dropped, c)
				reasons[c.ID()] = err
				mu.Unlock()
				return
			}
			sent.Add(1)
		})
	}
	wg.Wait()

	for _, c := range dropped {
		err := reasons[c.ID()]
		log.Warn().Err(err).Str("module", "app.relay").Str("room", string(name)).Str("conn", string(c.ID())).Msg("broadcast delivery failed")
		switch r.policy.OnDeliveryFailure(name, c, err) {
		case KickMember:
			r.Leave(name, c.ID())
			c.Close()
		case NoAction:
		}
	}

	res := core.PublishResult{SentTo: int(sent.Load()), Dropped: dropped}
	log.Debug().Str("module", "app.relay").Str("room", string(name)).Str("from", string(exclude)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// Unicast sends f to a single connection. Failures are logged and returned
// for reporting only; the caller is not expected to act on them.
func (r *Relay) Unicast(ctx context.Context, conn core.Connection, f core.Frame) error {
	if err := r.send(ctx, conn, f); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(conn.ID())).Msg("unicast delivery failed")
		return err
	}
	return nil
}

func (r *Relay) send(ctx context.Context, c core.Connection, f core.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	if err := c.Send(ctx, f); err != nil {
		return fmt.Errorf("%w: %w", core.ErrDeliveryFailure, err)
	}
	return nil
}

func (r *Relay) room(name domain.RoomName) (core.RoomService, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[name]
	return room, ok
}

// Members returns a snapshot of the room's membership.
func (r *Relay) Members(name domain.RoomName) []core.MemberDTO {
	room, ok := r.room(name)
	if !ok {
		return nil
	}
	return room.MembersSnapshot()
}

// RoomOf reports the room conn is joined to.
func (r *Relay) RoomOf(id core.ConnID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bindings[id]
	return name, ok
}

// List reports every live room with its member count and capacity.
func (r *Relay) List() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for name, room := range r.rooms {
		out = append(out, core.RoomInfo{Name: name, MemberCount: room.MemberCount(), Capacity: r.limits[name]})
	}
	return out
}
