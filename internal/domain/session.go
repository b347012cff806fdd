package domain

import "time"

type SessionID string

type Status string

const (
	StatusRequested Status = "requested"
	StatusAccepted  Status = "accepted"
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

type Event string

const (
	EventAccept  Event = "accept"
	EventDecline Event = "decline"
	EventCancel  Event = "cancel"
	EventEnd     Event = "end"
)

// transitions is the whole state machine. Terminal states have no entry.
var transitions = map[Status]map[Event]Status{
	StatusRequested: {
		EventAccept:  StatusAccepted,
		EventDecline: StatusDeclined,
		EventCancel:  StatusCancelled,
	},
	StatusAccepted: {
		EventEnd: StatusCompleted,
	},
}

// Next reports the status reached from s on e.
func (s Status) Next(e Event) (Status, bool) {
	to, ok := transitions[s][e]
	return to, ok
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Joinable reports whether the session's room may hold connections.
func (s Status) Joinable() bool { return s == StatusAccepted }

type Session struct {
	ID        SessionID `json:"id"`
	TeacherID UserID    `json:"teacher_id"`
	LearnerID UserID    `json:"learner_id"`
	Topic     string    `json:"topic"`
	Status    Status    `json:"status"`
	RoomName  RoomName  `json:"room_name"`
	// Prepaid is set when the learner was charged at request time.
	Prepaid bool `json:"prepaid"`
	// Charged is the amount held from the learner at request time.
	Charged int64 `json:"charged"`
	// Transferred is the amount the teacher received on completion.
	Transferred int64      `json:"transferred"`
	CreatedAt   time.Time  `json:"created_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

func (s *Session) IsParticipant(u UserID) bool {
	return u == s.TeacherID || u == s.LearnerID
}

// Counterpart returns the other participant.
func (s *Session) Counterpart(u UserID) UserID {
	if u == s.TeacherID {
		return s.LearnerID
	}
	return s.TeacherID
}
