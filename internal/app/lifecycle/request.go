package lifecycle

import (
	"fmt"
	"strings"

	"github.com/dkeye/skillcall/internal/domain"
)

const (
	DefaultTopic   = "Live Session"
	MaxTopicLength = 200
)

// Request is a learner asking a teacher for a call.
type Request struct {
	LearnerID domain.UserID
	TeacherID domain.UserID
	Topic     string
}

// Validate normalizes the topic and checks the participants.
func (r *Request) Validate() error {
	if err := r.LearnerID.Validate(); err != nil {
		return fmt.Errorf("%w: learner: %w", domain.ErrInvalidParticipants, err)
	}
	if err := r.TeacherID.Validate(); err != nil {
		return fmt.Errorf("%w: teacher: %w", domain.ErrInvalidParticipants, err)
	}
	if r.LearnerID == r.TeacherID {
		return fmt.Errorf("%w: cannot request a session with yourself", domain.ErrInvalidParticipants)
	}
	r.Topic = strings.TrimSpace(r.Topic)
	if r.Topic == "" {
		r.Topic = DefaultTopic
	}
	if len(r.Topic) > MaxTopicLength {
		return fmt.Errorf("%w: topic too long", domain.ErrInvalidInput)
	}
	return nil
}

// Ticket is what a learner gets back from a request.
type Ticket struct {
	SessionID domain.SessionID `json:"sessionId"`
	RoomName  domain.RoomName  `json:"roomName"`
	Status    domain.Status    `json:"status"`
	// Existing is set when the request was coalesced into a pending one.
	Existing bool `json:"existing"`
}
