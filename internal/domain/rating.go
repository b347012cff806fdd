package domain

import "time"

const (
	MinRatingScore   = 1
	MaxRatingScore   = 5
	MaxCommentLength = 1000
)

type Rating struct {
	ID        uint      `json:"id"`
	SessionID SessionID `json:"session_id"`
	RaterID   UserID    `json:"rater_id"`
	RateeID   UserID    `json:"ratee_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
