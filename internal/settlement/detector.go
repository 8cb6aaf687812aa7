// Package settlement turns purchased ticket numbers that hit a winning ticket into claims.
package settlement

import (
	"fmt"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/winning"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// errorClass tags claim detection failures in logs.
const errorClass = "claim_detection"

// Detector claims winning tickets for freshly created entries.
type Detector struct {
	now func() time.Time
}

// NewDetector returns a Detector.
func NewDetector() *Detector {
	return &Detector{now: time.Now}
}

// Detect runs inside the entry's transaction. Each match is claimed with a
// compare-and-set on status='available' within its own savepoint, so a failed claim
// never rolls back the entry. It returns the claims that were won.
func (d *Detector) Detect(tx *gorm.DB, entry *models.CompetitionEntry) []models.WinningTicketRef {
	if entry == nil || len(entry.TicketNumbers) == 0 {
		return nil
	}
	logger := log.WithFields(log.Fields{
		"competition_id": entry.CompetitionID,
		"entry_id":       entry.ID,
	})

	var matches []winning.Match
	errFind := tx.Transaction(func(sp *gorm.DB) error {
		found, errMatch := winning.FindMatchesTx(sp, entry.CompetitionID, entry.TicketNumbers)
		if errMatch != nil {
			return errMatch
		}
		matches = found
		return nil
	})
	if errFind != nil {
		logger.WithField("error_class", errorClass).WithError(errFind).Error("settlement: find matches failed")
		return nil
	}

	var won []models.WinningTicketRef
	for _, match := range matches {
		matchLogger := logger.WithFields(log.Fields{
			"ticket_number": match.TicketNumber,
			"prize_id":      match.PrizeID,
		})
		if match.Status != models.WinningTicketAvailable {
			matchLogger.WithFields(log.Fields{
				"error_class": apperrors.KindIntegrityViolation,
				"severity":    "fatal-class",
			}).Error("settlement: winning ticket already claimed by another entry")
			continue
		}
		errClaim := tx.Transaction(func(sp *gorm.DB) error {
			return d.claim(sp, entry, match)
		})
		if errClaim != nil {
			fields := log.Fields{"error_class": errorClass}
			if apperrors.Is(errClaim, apperrors.KindIntegrityViolation) {
				fields = log.Fields{"error_class": apperrors.KindIntegrityViolation, "severity": "fatal-class"}
			}
			matchLogger.WithFields(fields).WithError(errClaim).Error("settlement: claim failed, entry kept without the win")
			continue
		}
		won = append(won, models.WinningTicketRef{TicketNumber: match.TicketNumber, PrizeID: match.PrizeID})
		matchLogger.Info("settlement: winning ticket claimed")
	}
	return won
}

func (d *Detector) claim(tx *gorm.DB, entry *models.CompetitionEntry, match winning.Match) error {
	entryID := entry.ID
	userID := entry.UserID
	claimedAt := d.now().UTC()

	res := tx.Model(&models.WinningTicket{}).
		Where("id = ? AND status = ?", match.WinningTicketID, models.WinningTicketAvailable).
		Updates(map[string]any{
			"status":     models.WinningTicketClaimed,
			"entry_id":   entryID,
			"user_id":    userID,
			"claimed_at": claimedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("settlement: claim winning ticket: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return apperrors.New(apperrors.KindIntegrityViolation,
			"winning ticket %d was claimed concurrently", match.TicketNumber)
	}

	if errUpdate := tx.Model(&models.Prize{}).
		Where("id = ?", match.PrizeID).
		Update("won_quantity", gorm.Expr("won_quantity + ?", 1)).Error; errUpdate != nil {
		return fmt.Errorf("settlement: increment won quantity: %w", errUpdate)
	}
	return nil
}
