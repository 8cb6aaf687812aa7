package winning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/db"
	"github.com/rafflehq/ticket-engine/internal/models"
	"github.com/rafflehq/ticket-engine/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnlockInput is an administrative request to reopen prize configuration.
type UnlockInput struct {
	CompetitionID uint64
	AdminID       uint64
	Reason        string
	TOTPCode      string
}

// EnsureEditable fails with prize_config_locked when a competition already has a
// claimed winning ticket and its prize lock is not explicitly unlocked.
func (r *Registry) EnsureEditable(ctx context.Context, competitionID uint64) error {
	return EnsureEditableTx(r.db.WithContext(ctx), competitionID)
}

// EnsureEditableTx is EnsureEditable within an existing transaction.
func EnsureEditableTx(tx *gorm.DB, competitionID uint64) error {
	var claimed int64
	if errCount := tx.Model(&models.WinningTicket{}).
		Where("competition_id = ? AND status = ?", competitionID, models.WinningTicketClaimed).
		Count(&claimed).Error; errCount != nil {
		return fmt.Errorf("winning: count claimed: %w", errCount)
	}
	if claimed == 0 {
		return nil
	}
	state, errState := lockState(tx, competitionID)
	if errState != nil {
		return errState
	}
	if state == models.PrizeLockUnlocked {
		return nil
	}
	return apperrors.New(apperrors.KindPrizeConfigLocked,
		"competition %d has %d claimed winning tickets; unlock prize configuration first", competitionID, claimed)
}

// LockState returns the prize lock state of a competition. A competition without a lock row is locked.
func (r *Registry) LockState(ctx context.Context, competitionID uint64) (string, error) {
	return lockState(r.db.WithContext(ctx), competitionID)
}

// Unlock moves the prize lock to unlocked. The actor must be an active admin, a reason
// is mandatory, and admins enrolled in TOTP must supply a valid code.
func (r *Registry) Unlock(ctx context.Context, in UnlockInput) (*models.PrizeLock, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "a reason is required to unlock prize configuration")
	}
	admin, errAdmin := r.activeAdmin(ctx, in.AdminID)
	if errAdmin != nil {
		return nil, errAdmin
	}
	if admin.TOTPSecret != "" && !security.ValidateTOTP(admin.TOTPSecret, in.TOTPCode) {
		return nil, apperrors.New(apperrors.KindUnauthorized, "invalid one-time code")
	}
	lock, errTransition := r.transition(ctx, in.CompetitionID, admin.ID, models.PrizeLockUnlocked, reason)
	if errTransition != nil {
		return nil, errTransition
	}
	log.WithFields(log.Fields{
		"competition_id": in.CompetitionID,
		"admin_id":       admin.ID,
		"reason":         reason,
	}).Warn("prize configuration unlocked")
	return lock, nil
}

// Lock returns the prize lock to locked.
func (r *Registry) Lock(ctx context.Context, competitionID, adminID uint64, reason string) (*models.PrizeLock, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "relocked"
	}
	admin, errAdmin := r.activeAdmin(ctx, adminID)
	if errAdmin != nil {
		return nil, errAdmin
	}
	return r.transition(ctx, competitionID, admin.ID, models.PrizeLockLocked, reason)
}

// LockEvents returns the audit trail of a competition's prize lock, oldest first.
func (r *Registry) LockEvents(ctx context.Context, competitionID uint64) ([]models.PrizeLockEvent, error) {
	var rows []models.PrizeLockEvent
	if errFind := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("winning: list lock events: %w", errFind)
	}
	return rows, nil
}

func (r *Registry) transition(ctx context.Context, competitionID, adminID uint64, to, reason string) (*models.PrizeLock, error) {
	var lock models.PrizeLock
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errLoad := loadCompetition(tx, competitionID); errLoad != nil {
			return errLoad
		}
		seed := models.PrizeLock{CompetitionID: competitionID, State: models.PrizeLockLocked, ChangedAt: r.now().UTC()}
		if errCreate := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; errCreate != nil {
			return fmt.Errorf("winning: ensure lock: %w", errCreate)
		}
		if errFind := db.ForUpdate(tx).Where("competition_id = ?", competitionID).Take(&lock).Error; errFind != nil {
			return fmt.Errorf("winning: load lock: %w", errFind)
		}
		if lock.State == to {
			return nil
		}
		from := lock.State
		actor := adminID
		lock.State = to
		lock.Reason = reason
		lock.ActorAdminID = &actor
		lock.ChangedAt = r.now().UTC()
		if errSave := tx.Save(&lock).Error; errSave != nil {
			return fmt.Errorf("winning: save lock: %w", errSave)
		}
		event := models.PrizeLockEvent{
			CompetitionID: competitionID,
			FromState:     from,
			ToState:       to,
			Reason:        reason,
			ActorAdminID:  adminID,
		}
		if errCreate := tx.Create(&event).Error; errCreate != nil {
			return fmt.Errorf("winning: record lock event: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &lock, nil
}

func (r *Registry) activeAdmin(ctx context.Context, adminID uint64) (*models.Admin, error) {
	var admin models.Admin
	errFind := r.db.WithContext(ctx).Where("id = ?", adminID).Take(&admin).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindUnauthorized, "unknown admin")
	}
	if errFind != nil {
		return nil, fmt.Errorf("winning: load admin: %w", errFind)
	}
	if !admin.Active {
		return nil, apperrors.New(apperrors.KindUnauthorized, "admin is disabled")
	}
	return &admin, nil
}

func lockState(tx *gorm.DB, competitionID uint64) (string, error) {
	var lock models.PrizeLock
	errFind := tx.Where("competition_id = ?", competitionID).Take(&lock).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.PrizeLockLocked, nil
	}
	if errFind != nil {
		return "", fmt.Errorf("winning: load lock: %w", errFind)
	}
	return lock.State, nil
}
