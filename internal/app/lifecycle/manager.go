// Package lifecycle owns the call session state machine: when a room may
// exist, who may join it and how the credit economy reacts to each step.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/skillcall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	store  Store
	rooms  RoomOpener
	policy Policy
	locks  *keyedMutex

	now   func() time.Time
	newID func() domain.SessionID
}

func NewManager(store Store, rooms RoomOpener, policy Policy) *Manager {
	if policy.RoomPrefix == "" {
		policy.RoomPrefix = DefaultRoomPrefix
	}
	return &Manager{
		store:  store,
		rooms:  rooms,
		policy: policy,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() domain.SessionID { return domain.SessionID(uuid.NewString()) },
	}
}

func (m *Manager) Policy() Policy { return m.policy }

// CreateRequest opens a session between a learner and a teacher. A second
// request for the same pair while one is pending never opens a second room:
// it returns the pending session or fails with ErrAlreadyPending.
func (m *Manager) CreateRequest(ctx context.Context, req Request) (Ticket, error) {
	if err := req.Validate(); err != nil {
		return Ticket{}, err
	}

	unlock := m.locks.Lock("pair:" + string(req.LearnerID) + "|" + string(req.TeacherID))
	defer unlock()

	if _, err := m.store.GetUser(ctx, req.LearnerID); err != nil {
		return Ticket{}, fmt.Errorf("learner %s: %w", req.LearnerID, err)
	}
	if _, err := m.store.GetUser(ctx, req.TeacherID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Ticket{}, fmt.Errorf("%w: unknown teacher %s", domain.ErrInvalidParticipants, req.TeacherID)
		}
		return Ticket{}, err
	}

	existing, err := m.store.FindPending(ctx, req.LearnerID, req.TeacherID)
	switch {
	case err == nil:
		if m.policy.RejectDuplicates {
			return Ticket{}, fmt.Errorf("%w: session %s", domain.ErrAlreadyPending, existing.ID)
		}
		return Ticket{SessionID: existing.ID, RoomName: existing.RoomName, Status: existing.Status, Existing: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		return Ticket{}, err
	}

	id := m.newID()
	salt := ""
	if m.policy.SaltRooms {
		salt = domain.NewRoomSalt()
	}
	s := &domain.Session{
		ID:        id,
		TeacherID: req.TeacherID,
		LearnerID: req.LearnerID,
		Topic:     req.Topic,
		Status:    domain.StatusRequested,
		RoomName:  domain.NewRoomName(m.policy.RoomPrefix, id, salt),
		CreatedAt: m.now(),
	}
	var hold int64
	if m.policy.ChargeAtRequest {
		hold = m.policy.BookingCost
		s.Prepaid = true
		s.Charged = hold
	}
	if err := m.store.CreateSession(ctx, s, hold); err != nil {
		return Ticket{}, err
	}

	log.Info().
		Str("module", "lifecycle").
		Str("session", string(s.ID)).
		Str("learner", string(s.LearnerID)).
		Str("teacher", string(s.TeacherID)).
		Int64("charged", s.Charged).
		Msg("session requested")
	return Ticket{SessionID: s.ID, RoomName: s.RoomName, Status: s.Status}, nil
}

// Accept lets the teacher take a pending request; the room becomes joinable.
func (m *Manager) Accept(ctx context.Context, id domain.SessionID, actor domain.UserID) (domain.RoomName, error) {
	s, err := m.transition(ctx, id, actor, domain.EventAccept)
	if err != nil {
		return "", err
	}
	return s.RoomName, nil
}

func (m *Manager) Decline(ctx context.Context, id domain.SessionID, actor domain.UserID) error {
	_, err := m.transition(ctx, id, actor, domain.EventDecline)
	return err
}

func (m *Manager) Cancel(ctx context.Context, id domain.SessionID, actor domain.UserID) error {
	_, err := m.transition(ctx, id, actor, domain.EventCancel)
	return err
}

// End completes an active session and pays the teacher. Only the first of
// any number of concurrent calls succeeds; the rest get ErrInvalidState.
func (m *Manager) End(ctx context.Context, id domain.SessionID, actor domain.UserID) error {
	_, err := m.transition(ctx, id, actor, domain.EventEnd)
	return err
}

func (m *Manager) transition(ctx context.Context, id domain.SessionID, actor domain.UserID, ev domain.Event) (*domain.Session, error) {
	unlock := m.locks.Lock("session:" + string(id))
	defer unlock()

	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !mayAct(s, actor, ev) {
		return nil, fmt.Errorf("%w: %s cannot %s session %s", domain.ErrNotAuthorized, actor, ev, id)
	}
	to, ok := s.Status.Next(ev)
	if !ok {
		return nil, fmt.Errorf("%w: cannot %s a %s session", domain.ErrInvalidState, ev, s.Status)
	}

	t := domain.Transition{SessionID: s.ID, From: s.Status, To: to}
	if to.Terminal() {
		now := m.now()
		t.EndedAt = &now
	}
	switch ev {
	case domain.EventDecline, domain.EventCancel:
		if s.Charged > 0 {
			t.Credits = []domain.CreditDelta{{User: s.LearnerID, Amount: s.Charged}}
		}
	case domain.EventEnd:
		if m.policy.Reward > 0 {
			t.Transfer = &domain.Transfer{To: s.TeacherID, Amount: m.policy.Reward}
			if !s.Prepaid {
				t.Transfer.From = s.LearnerID
			}
		}
	case domain.EventAccept:
		// Open before commit so no join can slip in without a capacity.
		m.rooms.Open(s.RoomName, m.policy.RoomCapacity)
	}

	updated, err := m.store.Transition(ctx, t)
	if err != nil {
		if ev == domain.EventAccept {
			m.rooms.Close(s.RoomName)
		}
		return nil, err
	}
	if to.Terminal() {
		m.rooms.Close(s.RoomName)
	}

	log.Info().
		Str("module", "lifecycle").
		Str("session", string(id)).
		Str("actor", string(actor)).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Int64("transferred", updated.Transferred).
		Msg("session transition")
	return updated, nil
}

// mayAct is the authorization table: the teacher answers requests, the
// learner withdraws them, either participant ends the call.
func mayAct(s *domain.Session, actor domain.UserID, ev domain.Event) bool {
	switch ev {
	case domain.EventAccept, domain.EventDecline:
		return actor == s.TeacherID
	case domain.EventCancel:
		return actor == s.LearnerID
	case domain.EventEnd:
		return s.IsParticipant(actor)
	}
	return false
}

// Get returns the session to one of its participants.
func (m *Manager) Get(ctx context.Context, id domain.SessionID, actor domain.UserID) (*domain.Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.IsParticipant(actor) {
		return nil, fmt.Errorf("%w: %s is not part of session %s", domain.ErrNotAuthorized, actor, id)
	}
	return s, nil
}

// AuthorizeRoom checks that actor may connect to room right now and returns
// the room capacity. Rooms are joinable only while their session is accepted.
func (m *Manager) AuthorizeRoom(ctx context.Context, room domain.RoomName, actor domain.UserID) (int, error) {
	err := m.withJoinableSession(ctx, room, actor, func() error { return nil })
	if err != nil {
		return 0, err
	}
	return m.policy.RoomCapacity, nil
}

// AdmitToRoom authorizes actor like AuthorizeRoom, registers the room
// capacity and runs join while the session cannot change state. A transition
// that follows sees the joined connection and evicts it on Close.
func (m *Manager) AdmitToRoom(ctx context.Context, room domain.RoomName, actor domain.UserID, join func() error) error {
	return m.withJoinableSession(ctx, room, actor, func() error {
		m.rooms.Open(room, m.policy.RoomCapacity)
		return join()
	})
}

func (m *Manager) withJoinableSession(ctx context.Context, room domain.RoomName, actor domain.UserID, fn func() error) error {
	if !strings.HasPrefix(string(room), m.policy.RoomPrefix+"_") {
		return fmt.Errorf("room %s: %w", room, domain.ErrNotFound)
	}
	s, err := m.store.FindSessionByRoom(ctx, room)
	if err != nil {
		return err
	}

	unlock := m.locks.Lock("session:" + string(s.ID))
	defer unlock()
	// Re-read under the lock so an Accept or End in flight is observed.
	s, err = m.store.GetSession(ctx, s.ID)
	if err != nil {
		return err
	}
	if !s.IsParticipant(actor) {
		return fmt.Errorf("%w: %s is not part of room %s", domain.ErrNotAuthorized, actor, room)
	}
	if !s.Status.Joinable() {
		return fmt.Errorf("%w: room %s is not open (%s)", domain.ErrInvalidState, room, s.Status)
	}
	return fn()
}

// PendingCount is the number of requests waiting on teacher.
func (m *Manager) PendingCount(ctx context.Context, teacher domain.UserID) (int64, error) {
	return m.store.CountPending(ctx, teacher)
}

// History lists every session user took part in, newest first.
func (m *Manager) History(ctx context.Context, user domain.UserID) ([]domain.Session, error) {
	return m.store.ListSessions(ctx, user)
}

// Rate records actor's rating of the other participant of a completed session.
func (m *Manager) Rate(ctx context.Context, id domain.SessionID, actor domain.UserID, score int, comment string) (*domain.Rating, error) {
	if score < domain.MinRatingScore || score > domain.MaxRatingScore {
		return nil, fmt.Errorf("%w: score must be between %d and %d", domain.ErrInvalidInput, domain.MinRatingScore, domain.MaxRatingScore)
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > domain.MaxCommentLength {
		return nil, fmt.Errorf("%w: comment too long", domain.ErrInvalidInput)
	}

	s, err := m.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if s.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: can only rate completed sessions", domain.ErrInvalidState)
	}

	r := &domain.Rating{
		SessionID: s.ID,
		RaterID:   actor,
		RateeID:   s.Counterpart(actor),
		Score:     score,
		Comment:   comment,
		CreatedAt: m.now(),
	}
	if err := m.store.CreateRating(ctx, r); err != nil {
		return nil, err
	}
	log.Info().Str("module", "lifecycle").Str("session", string(id)).Str("actor", string(actor)).Int("score", score).Msg("session rated")
	return r, nil
}
