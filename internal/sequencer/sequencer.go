// Package sequencer issues gapless, strictly increasing ticket numbers per competition.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/retry"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultLockTimeout = 2 * time.Second

// Range is an inclusive block of ticket numbers.
type Range struct {
	First int64
	Last  int64
}

// Count returns the number of tickets in the range.
func (r Range) Count() int64 {
	if r.Last < r.First {
		return 0
	}
	return r.Last - r.First + 1
}

// Numbers expands the range into ticket numbers in ascending order.
func (r Range) Numbers() []int64 {
	out := make([]int64, 0, r.Count())
	for n := r.First; n <= r.Last; n++ {
		out = append(out, n)
	}
	return out
}

// Sequencer owns the ticket_counters rows. No other code assigns ticket numbers.
type Sequencer struct {
	db          *gorm.DB
	policy      retry.Policy
	lockTimeout time.Duration
	now         func() time.Time
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

// WithRetryPolicy sets the contention retry policy used by Reserve.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Sequencer) { s.policy = p }
}

// WithLockTimeout bounds how long a reservation waits for the counter row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Sequencer) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithClock overrides the clock used for the competition window check.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Sequencer backed by conn.
func New(conn *gorm.DB, opts ...Option) *Sequencer {
	s := &Sequencer{
		db:          conn,
		policy:      retry.DefaultPolicy(),
		lockTimeout: defaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve atomically reserves count tickets in its own transaction, retrying on
// lock contention. Nothing is reserved when the competition cannot supply count.
func (s *Sequencer) Reserve(ctx context.Context, competitionID uint64, count int64) (Range, error) {
	var reserved Range
	errDo := retry.Do(ctx, s.policy, "sequencer.reserve", db.IsContention, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r, errReserve := s.ReserveTx(tx, competitionID, count)
			if errReserve != nil {
				return errReserve
			}
			reserved = r
			return nil
		})
	})
	if errDo != nil {
		return Range{}, errDo
	}
	return reserved, nil
}

// ReserveTx reserves count tickets inside the caller's transaction. The competition
// is re-validated under the same transaction so a stale read never oversells.
func (s *Sequencer) ReserveTx(tx *gorm.DB, competitionID uint64, count int64) (Range, error) {
	if count <= 0 {
		return Range{}, apperrors.New(apperrors.KindInvalidArgument, "ticket count must be positive, got %d", count)
	}
	if competitionID == 0 {
		return Range{}, apperrors.New(apperrors.KindInvalidArgument, "competition id is required")
	}
	if errTimeout := db.SetLockTimeout(tx, s.lockTimeout); errTimeout != nil {
		return Range{}, errTimeout
	}

	var competition models.Competition
	if errFind := db.ForUpdate(tx).Where("id = ?", competitionID).Take(&competition).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Range{}, apperrors.New(apperrors.KindNotFound, "competition %d not found", competitionID)
		}
		return Range{}, fmt.Errorf("sequencer: load competition: %w", errFind)
	}
	if !competition.AcceptsEntries(s.now()) {
		return Range{}, apperrors.New(apperrors.KindCompetitionClosed, "competition %d is not accepting entries", competitionID)
	}

	counter := models.TicketCounter{CompetitionID: competitionID}
	if errCreate := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; errCreate != nil {
		return Range{}, fmt.Errorf("sequencer: ensure counter: %w", errCreate)
	}

	res := tx.Model(&models.TicketCounter{}).
		Where("competition_id = ? AND last_ticket_number + ? <= ?", competitionID, count, competition.TotalTickets).
		Updates(map[string]any{
			"last_ticket_number": gorm.Expr("last_ticket_number + ?", count),
			"updated_at":         s.now().UTC(),
		})
	if res.Error != nil {
		return Range{}, fmt.Errorf("sequencer: advance counter: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return Range{}, apperrors.New(apperrors.KindCapacityExceeded,
			"only %d tickets remain for competition %d, %d requested", competition.Remaining(), competitionID, count)
	}

	var after models.TicketCounter
	if errFind := tx.Where("competition_id = ?", competitionID).Take(&after).Error; errFind != nil {
		return Range{}, fmt.Errorf("sequencer: read counter: %w", errFind)
	}
	if errUpdate := tx.Model(&models.Competition{}).
		Where("id = ?", competitionID).
		Update("tickets_sold", after.LastTicketNumber).Error; errUpdate != nil {
		return Range{}, fmt.Errorf("sequencer: update tickets sold: %w", errUpdate)
	}

	reserved := Range{First: after.LastTicketNumber - count + 1, Last: after.LastTicketNumber}
	log.WithFields(log.Fields{
		"competition_id": competitionID,
		"first":          reserved.First,
		"last":           reserved.Last,
	}).Debug("sequencer: reserved tickets")
	return reserved, nil
}

// LastIssued returns the highest ticket number issued for a competition, or 0.
func (s *Sequencer) LastIssued(ctx context.Context, competitionID uint64) (int64, error) {
	return LastIssuedTx(s.db.WithContext(ctx), competitionID)
}

// LastIssuedTx is LastIssued within an existing transaction.
func LastIssuedTx(tx *gorm.DB, competitionID uint64) (int64, error) {
	var counter models.TicketCounter
	errFind := tx.Where("competition_id = ?", competitionID).Take(&counter).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if errFind != nil {
		return 0, fmt.Errorf("sequencer: read counter: %w", errFind)
	}
	return counter.LastTicketNumber, nil
}
