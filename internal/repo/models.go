package repo

import (
	"time"

	"github.com/dkeye/skillcall/internal/domain"
)

// User mirrors the columns of the shared users table this service touches.
type User struct {
	ID        string `gorm:"primarykey;size:64"`
	Username  string `gorm:"size:36"`
	Credits   int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }

func (u *User) toDomain() *domain.User {
	return &domain.User{
		ID:        domain.UserID(u.ID),
		Username:  u.Username,
		Credits:   u.Credits,
		CreatedAt: u.CreatedAt,
	}
}

type CallSession struct {
	ID          string `gorm:"primarykey;size:36"`
	TeacherID   string `gorm:"size:64;not null;index:idx_pending,priority:2"`
	LearnerID   string `gorm:"size:64;not null;index:idx_pending,priority:1"`
	Topic       string `gorm:"size:200"`
	Status      string `gorm:"size:16;not null;index;index:idx_pending,priority:3"`
	RoomName    string `gorm:"size:128;not null;uniqueIndex"`
	Prepaid     bool   `gorm:"not null;default:false"`
	Charged     int64  `gorm:"not null;default:0"`
	Transferred int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	EndedAt     *time.Time
}

func (CallSession) TableName() string { return "call_sessions" }

func newCallSession(s *domain.Session) *CallSession {
	return &CallSession{
		ID:          string(s.ID),
		TeacherID:   string(s.TeacherID),
		LearnerID:   string(s.LearnerID),
		Topic:       s.Topic,
		Status:      string(s.Status),
		RoomName:    string(s.RoomName),
		Prepaid:     s.Prepaid,
		Charged:     s.Charged,
		Transferred: s.Transferred,
		CreatedAt:   s.CreatedAt,
		EndedAt:     s.EndedAt,
	}
}

func (c *CallSession) toDomain() *domain.Session {
	return &domain.Session{
		ID:          domain.SessionID(c.ID),
		TeacherID:   domain.UserID(c.TeacherID),
		LearnerID:   domain.UserID(c.LearnerID),
		Topic:       c.Topic,
		Status:      domain.Status(c.Status),
		RoomName:    domain.RoomName(c.RoomName),
		Prepaid:     c.Prepaid,
		Charged:     c.Charged,
		Transferred: c.Transferred,
		CreatedAt:   c.CreatedAt,
		EndedAt:     c.EndedAt,
	}
}

type Rating struct {
	ID        uint   `gorm:"primarykey"`
	SessionID string `gorm:"size:36;not null;uniqueIndex:idx_rating_once,priority:1"`
	RaterID   string `gorm:"size:64;not null;uniqueIndex:idx_rating_once,priority:2"`
	RateeID   string `gorm:"size:64;not null;index"`
	Score     int    `gorm:"not null"`
	Comment   string `gorm:"size:1000"`
	CreatedAt time.Time
}

func (Rating) TableName() string { return "ratings" }
