// Package entries persists competition entries and guards competition-wide ticket uniqueness.
package entries

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/sequencer"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ticketInsertBatchSize = 500

// FundingRefs links an entry to the records that paid for it.
type FundingRefs struct {
	WalletTransactionID  *uint64
	PaymentTransactionID *uint64
	OrderID              *uint64
}

// Store reads and writes competition entries.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore returns a Store backed by conn.
func NewStore(conn *gorm.DB) *Store {
	return &Store{db: conn, now: time.Now}
}

// CreateEntry writes an entry in its own transaction.
func (s *Store) CreateEntry(ctx context.Context, competitionID, userID uint64, ticketNumbers []int64, refs FundingRefs) (*models.CompetitionEntry, error) {
	var created *models.CompetitionEntry
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, errCreate := s.CreateEntryTx(tx, competitionID, userID, ticketNumbers, refs)
		if errCreate != nil {
			return errCreate
		}
		created = entry
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return created, nil
}

// CreateEntryTx writes an entry and its ticket guard rows inside tx. Every number must
// already have been issued by the sequencer for the competition. A number that is
// already owned by another entry fails the insert with an integrity_violation.
func (s *Store) CreateEntryTx(tx *gorm.DB, competitionID, userID uint64, ticketNumbers []int64, refs FundingRefs) (*models.CompetitionEntry, error) {
	if competitionID == 0 || userID == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "competition and user are required")
	}
	numbers, errNormalize := normalizeTicketNumbers(ticketNumbers)
	if errNormalize != nil {
		return nil, errNormalize
	}

	lastIssued, errLast := sequencer.LastIssuedTx(tx, competitionID)
	if errLast != nil {
		return nil, errLast
	}
	if numbers[len(numbers)-1] > lastIssued {
		return nil, apperrors.New(apperrors.KindIntegrityViolation,
			"ticket %d was never issued for competition %d", numbers[len(numbers)-1], competitionID)
	}

	entry := &models.CompetitionEntry{
		CompetitionID:        competitionID,
		UserID:               userID,
		TicketNumbers:        datatypes.NewJSONSlice(numbers),
		FirstTicket:          numbers[0],
		LastTicket:           numbers[len(numbers)-1],
		Status:               models.EntryStatusActive,
		WalletTransactionID:  refs.WalletTransactionID,
		PaymentTransactionID: refs.PaymentTransactionID,
		OrderID:              refs.OrderID,
		PurchasedAt:          s.now().UTC(),
	}
	if errCreate := tx.Create(entry).Error; errCreate != nil {
		return nil, fmt.Errorf("entries: create entry: %w", errCreate)
	}

	guards := make([]models.EntryTicket, 0, len(numbers))
	for _, n := range numbers {
		guards = append(guards, models.EntryTicket{CompetitionID: competitionID, TicketNumber: n, EntryID: entry.ID})
	}
	if errCreate := tx.CreateInBatches(&guards, ticketInsertBatchSize).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			log.WithFields(log.Fields{
				"error_class":    apperrors.KindIntegrityViolation,
				"severity":       "fatal-class",
				"competition_id": competitionID,
				"first":          entry.FirstTicket,
				"last":           entry.LastTicket,
			}).WithError(errCreate).Error("entries: duplicate ticket number rejected")
			return nil, apperrors.Wrap(apperrors.KindIntegrityViolation, errCreate,
				"ticket numbers %d-%d overlap an existing entry", entry.FirstTicket, entry.LastTicket)
		}
		return nil, fmt.Errorf("entries: create ticket guards: %w", errCreate)
	}
	return entry, nil
}

// ListForUser returns the committed entries of a user, newest first.
func (s *Store) ListForUser(ctx context.Context, userID uint64) ([]models.CompetitionEntry, error) {
	var rows []models.CompetitionEntry
	if errFind := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("purchased_at DESC, id DESC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("entries: list for user: %w", errFind)
	}
	return rows, nil
}

// ListForCompetition returns the committed entries of a competition in ticket order.
func (s *Store) ListForCompetition(ctx context.Context, competitionID uint64) ([]models.CompetitionEntry, error) {
	var rows []models.CompetitionEntry
	if errFind := s.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("first_ticket ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("entries: list for competition: %w", errFind)
	}
	return rows, nil
}

// Get loads one entry.
func (s *Store) Get(ctx context.Context, entryID uint64) (*models.CompetitionEntry, error) {
	var entry models.CompetitionEntry
	errFind := s.db.WithContext(ctx).Where("id = ?", entryID).Take(&entry).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "entry %d not found", entryID)
	}
	if errFind != nil {
		return nil, fmt.Errorf("entries: get: %w", errFind)
	}
	return &entry, nil
}

// MarkStatus moves an entry from active to used or expired.
func (s *Store) MarkStatus(ctx context.Context, entryID uint64, status string) error {
	if status != models.EntryStatusUsed && status != models.EntryStatusExpired {
		return apperrors.New(apperrors.KindInvalidArgument, "unsupported entry status %q", status)
	}
	res := s.db.WithContext(ctx).Model(&models.CompetitionEntry{}).
		Where("id = ? AND status = ?", entryID, models.EntryStatusActive).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("entries: mark status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "entry %d is not active", entryID)
	}
	return nil
}

// ExpireCompetition marks every active entry of an ended competition as expired.
func (s *Store) ExpireCompetition(ctx context.Context, competitionID uint64) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.CompetitionEntry{}).
		Where("competition_id = ? AND status = ?", competitionID, models.EntryStatusActive).
		Update("status", models.EntryStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("entries: expire competition: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// normalizeTicketNumbers validates and sorts a copy of the numbers.
func normalizeTicketNumbers(in []int64) ([]int64, error) {
	if len(in) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "an entry needs at least one ticket number")
	}
	out := make([]int64, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	if out[0] < 1 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "ticket numbers start at 1, got %d", out[0])
	}
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			return nil, apperrors.New(apperrors.KindInvalidArgument, "ticket number %d appears twice", out[i])
		}
	}
	return out, nil
}
