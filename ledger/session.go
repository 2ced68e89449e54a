package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/quailyquaily/chipdesk/db/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// InitialState is the conversation state a session falls back to when it has
// no assigned account.
const InitialState = "start"

// ErrNotEligible is returned by SaveSession for sessions without an assigned
// account name; nothing is written.
var ErrNotEligible = errors.New("session has no assigned account name")

type Session struct {
	UserID              int64
	DisplayName         string
	AssignedAccountName string
	State               string
	PendingAmount       decimal.Decimal
	CreatedAt           time.Time
}

// Eligible reports whether the session may be persisted.
func (s Session) Eligible() bool {
	return strings.TrimSpace(s.AssignedAccountName) != ""
}

// Normalize resets a session that claims progress without an account.
func (s Session) Normalize() Session {
	if !s.Eligible() && s.State != InitialState {
		s.State = InitialState
	}
	return s
}

// LoadSession reads a stored session. found is false when none exists.
func (l *Ledger) LoadSession(ctx context.Context, userID int64) (Session, bool, error) {
	var row models.Session
	var found bool
	err := l.do(ctx, "load_session", func(ctx context.Context) error {
		res := l.db.WithContext(ctx).Where("user_id = ?", userID).Limit(1).Find(&row)
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	if err != nil || !found {
		return Session{}, false, err
	}
	s := Session{
		UserID:              row.UserID,
		DisplayName:         row.DisplayName,
		AssignedAccountName: row.AssignedAccountName,
		State:               row.State,
		PendingAmount:       row.PendingAmount,
		CreatedAt:           row.CreatedAt,
	}
	return s.Normalize(), true, nil
}

// SaveSession upserts s. Sessions without an assigned account are skipped
// with ErrNotEligible.
func (l *Ledger) SaveSession(ctx context.Context, s Session) error {
	if !s.Eligible() {
		l.logger.Debug("session_save_skipped", "user_id", s.UserID, "state", s.State)
		return ErrNotEligible
	}
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = l.now()
	}
	row := models.Session{
		UserID:              s.UserID,
		DisplayName:         s.DisplayName,
		AssignedAccountName: strings.TrimSpace(s.AssignedAccountName),
		State:               s.State,
		PendingAmount:       s.PendingAmount.Round(2),
		CreatedAt:           createdAt.UTC(),
		UpdatedAt:           l.now().UTC(),
	}
	return l.do(ctx, "save_session", func(ctx context.Context) error {
		return l.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"display_name", "assigned_account_name", "state", "pending_amount", "updated_at",
				}),
			}).
			Create(&row).Error
	})
}
