// Package repo persists sessions, ratings and credit balances with gorm.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/skillcall/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the sqlite database at dsn and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	// sqlite has a single writer; one connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&User{}, &CallSession{}, &Rating{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// Store implements lifecycle.Store on top of gorm.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateUser provisions a user row. Users are owned by the user service;
// this exists for seeding and tests.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	rec := &User{ID: string(u.ID), Username: u.Username, Credits: u.Credits}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var rec User
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.findSession(s.db.WithContext(ctx), "id = ?", string(id))
}

func (s *Store) FindSessionByRoom(ctx context.Context, room domain.RoomName) (*domain.Session, error) {
	return s.findSession(s.db.WithContext(ctx), "room_name = ?", string(room))
}

func (s *Store) FindPending(ctx context.Context, learner, teacher domain.UserID) (*domain.Session, error) {
	return s.findSession(s.db.WithContext(ctx).Order("created_at"),
		"learner_id = ? AND teacher_id = ? AND status = ?",
		string(learner), string(teacher), string(domain.StatusRequested))
}

func (s *Store) findSession(db *gorm.DB, query string, args ...any) (*domain.Session, error) {
	var rec CallSession
	if err := db.Where(query, args...).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("session: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return rec.toDomain(), nil
}

func (s *Store) CreateSession(ctx context.Context, sess *domain.Session, hold int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if hold > 0 {
			if err := applyDelta(tx, domain.CreditDelta{User: sess.LearnerID, Amount: -hold}); err != nil {
				return err
			}
		}
		if err := tx.Create(newCallSession(sess)).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
}

func (s *Store) Transition(ctx context.Context, t domain.Transition) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     string(t.To),
			"updated_at": time.Now().UTC(),
		}
		if t.EndedAt != nil {
			updates["ended_at"] = *t.EndedAt
		}
		res := tx.Model(&CallSession{}).
			Where("id = ? AND status = ?", string(t.SessionID), string(t.From)).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			if _, err := s.findSession(tx, "id = ?", string(t.SessionID)); err != nil {
				return err
			}
			return fmt.Errorf("%w: session %s is no longer %s", domain.ErrInvalidState, t.SessionID, t.From)
		}

		for _, d := range t.Credits {
			if err := applyDelta(tx, d); err != nil {
				return err
			}
		}
		if t.Transfer != nil {
			moved, err := applyTransfer(tx, *t.Transfer)
			if err != nil {
				return err
			}
			if err := tx.Model(&CallSession{}).Where("id = ?", string(t.SessionID)).
				Update("transferred", moved).Error; err != nil {
				return fmt.Errorf("failed to record transfer: %w", err)
			}
		}

		sess, err := s.findSession(tx, "id = ?", string(t.SessionID))
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyDelta adds d.Amount to the user's balance, refusing to go below zero.
func applyDelta(tx *gorm.DB, d domain.CreditDelta) error {
	res := tx.Model(&User{}).
		Where("id = ? AND credits + ? >= 0", string(d.User), d.Amount).
		Update("credits", gorm.Expr("credits + ?", d.Amount))
	if res.Error != nil {
		return fmt.Errorf("failed to adjust credits: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&User{}).Where("id = ?", string(d.User)).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to find user: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("user %s: %w", d.User, domain.ErrNotFound)
		}
		return fmt.Errorf("%w: user %s cannot cover %d", domain.ErrInsufficientBalance, d.User, -d.Amount)
	}
	return nil
}

// applyTransfer pays t.To and returns what it received: the full amount when
// externally funded, otherwise min(amount, balance of From).
func applyTransfer(tx *gorm.DB, t domain.Transfer) (int64, error) {
	if t.From == "" {
		if t.Amount <= 0 {
			return 0, nil
		}
		if err := applyDelta(tx, domain.CreditDelta{User: t.To, Amount: t.Amount}); err != nil {
			return 0, err
		}
		return t.Amount, nil
	}
	var from User
	if err := tx.First(&from, "id = ?", string(t.From)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("user %s: %w", t.From, domain.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to find user: %w", err)
	}
	moved := min(t.Amount, from.Credits)
	if moved <= 0 {
		return 0, nil
	}
	if err := applyDelta(tx, domain.CreditDelta{User: t.From, Amount: -moved}); err != nil {
		return 0, err
	}
	if err := applyDelta(tx, domain.CreditDelta{User: t.To, Amount: moved}); err != nil {
		return 0, err
	}
	return moved, nil
}

func (s *Store) CountPending(ctx context.Context, teacher domain.UserID) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&CallSession{}).
		Where("teacher_id = ? AND status = ?", string(teacher), string(domain.StatusRequested)).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending sessions: %w", err)
	}
	return n, nil
}

func (s *Store) ListSessions(ctx context.Context, user domain.UserID) ([]domain.Session, error) {
	var recs []CallSession
	err := s.db.WithContext(ctx).
		Where("teacher_id = ? OR learner_id = ?", string(user), string(user)).
		Order("created_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(recs))
	for i := range recs {
		out = append(out, *recs[i].toDomain())
	}
	return out, nil
}

func (s *Store) CreateRating(ctx context.Context, r *domain.Rating) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Rating{}).
			Where("session_id = ? AND rater_id = ?", string(r.SessionID), string(r.RaterID)).
			Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check rating: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: session %s", domain.ErrAlreadyRated, r.SessionID)
		}
		rec := &Rating{
			SessionID: string(r.SessionID),
			RaterID:   string(r.RaterID),
			RateeID:   string(r.RateeID),
			Score:     r.Score,
			Comment:   r.Comment,
			CreatedAt: r.CreatedAt,
		}
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create rating: %w", err)
		}
		r.ID = rec.ID
		return nil
	})
}
