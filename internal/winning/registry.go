// Package winning holds the pre-seeded winning ticket numbers of each prize and the
// lock that freezes prize configuration once winners exist.
package winning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/models"
	"gorm.io/gorm"
)

// inChunk caps the size of IN lists sent to the database.
const inChunk = 500

// Match is a purchased ticket number that is also a winning ticket.
type Match struct {
	WinningTicketID uint64
	TicketNumber    int64
	PrizeID         uint64
	Status          string
}

// Registry manages prizes and their winning tickets.
type Registry struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRegistry returns a Registry backed by conn.
func NewRegistry(conn *gorm.DB) *Registry {
	return &Registry{db: conn, now: time.Now}
}

// PrizeInput describes a prize to create or update.
type PrizeInput struct {
	ProductRef    string
	Title         string
	TotalQuantity int64
	Phase         int
	IsInstantWin  bool
	PrizeGroup    string
}

func (in PrizeInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperrors.New(apperrors.KindInvalidArgument, "prize title is required")
	}
	if in.TotalQuantity <= 0 {
		return apperrors.New(apperrors.KindInvalidArgument, "prize quantity must be positive")
	}
	if in.Phase < 0 || in.Phase > MaxPhase {
		return apperrors.New(apperrors.KindInvalidArgument, "phase must be between 0 and %d", MaxPhase)
	}
	return nil
}

// CreatePrize adds a prize to a competition while its prize configuration is editable.
func (r *Registry) CreatePrize(ctx context.Context, competitionID uint64, in PrizeInput) (*models.Prize, error) {
	if errValidate := in.validate(); errValidate != nil {
		return nil, errValidate
	}
	var prize *models.Prize
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errLoad := loadCompetition(tx, competitionID); errLoad != nil {
			return errLoad
		}
		if errEditable := EnsureEditableTx(tx, competitionID); errEditable != nil {
			return errEditable
		}
		prize = &models.Prize{
			CompetitionID: competitionID,
			ProductRef:    strings.TrimSpace(in.ProductRef),
			Title:         strings.TrimSpace(in.Title),
			TotalQuantity: in.TotalQuantity,
			Phase:         in.Phase,
			IsInstantWin:  in.IsInstantWin,
			PrizeGroup:    strings.TrimSpace(in.PrizeGroup),
		}
		if errCreate := tx.Create(prize).Error; errCreate != nil {
			return fmt.Errorf("winning: create prize: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return prize, nil
}

// UpdatePrize edits a prize while its prize configuration is editable. A phase change
// is refused when seeded numbers would fall outside the new range.
func (r *Registry) UpdatePrize(ctx context.Context, prizeID uint64, in PrizeInput) (*models.Prize, error) {
	if errValidate := in.validate(); errValidate != nil {
		return nil, errValidate
	}
	var prize models.Prize
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errLoad := loadPrize(tx, prizeID, &prize); errLoad != nil {
			return errLoad
		}
		competition, errLoad := loadCompetition(tx, prize.CompetitionID)
		if errLoad != nil {
			return errLoad
		}
		if errEditable := EnsureEditableTx(tx, prize.CompetitionID); errEditable != nil {
			return errEditable
		}
		if in.TotalQuantity < prize.WonQuantity {
			return apperrors.New(apperrors.KindInvalidArgument, "quantity %d is below the %d already won", in.TotalQuantity, prize.WonQuantity)
		}
		var seededCount int64
		if errCount := tx.Model(&models.WinningTicket{}).Where("prize_id = ?", prizeID).Count(&seededCount).Error; errCount != nil {
			return fmt.Errorf("winning: count seeded: %w", errCount)
		}
		if in.TotalQuantity < seededCount {
			return apperrors.New(apperrors.KindInvalidArgument, "quantity %d is below the %d winning tickets seeded", in.TotalQuantity, seededCount)
		}
		if in.Phase != prize.Phase {
			phaseRange, errRange := PhaseRange(competition.TotalTickets, in.Phase, competition.IsRaffle)
			if errRange != nil {
				return errRange
			}
			var outside int64
			if errCount := tx.Model(&models.WinningTicket{}).
				Where("prize_id = ? AND (ticket_number < ? OR ticket_number > ?)", prizeID, phaseRange.First, phaseRange.Last).
				Count(&outside).Error; errCount != nil {
				return fmt.Errorf("winning: check seeded range: %w", errCount)
			}
			if outside > 0 {
				return apperrors.New(apperrors.KindInvalidArgument, "%d seeded numbers fall outside phase %d", outside, in.Phase)
			}
		}
		prize.ProductRef = strings.TrimSpace(in.ProductRef)
		prize.Title = strings.TrimSpace(in.Title)
		prize.TotalQuantity = in.TotalQuantity
		prize.Phase = in.Phase
		prize.IsInstantWin = in.IsInstantWin
		prize.PrizeGroup = strings.TrimSpace(in.PrizeGroup)
		if errSave := tx.Save(&prize).Error; errSave != nil {
			return fmt.Errorf("winning: update prize: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &prize, nil
}

// ListPrizes returns the prizes of a competition.
func (r *Registry) ListPrizes(ctx context.Context, competitionID uint64) ([]models.Prize, error) {
	var rows []models.Prize
	if errFind := r.db.WithContext(ctx).
		Where("competition_id = ?", competitionID).
		Order("phase ASC, id ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("winning: list prizes: %w", errFind)
	}
	return rows, nil
}

// Seed designates numbers as winning tickets of a prize. Every number must lie in the
// prize's phase range, must not belong to another winning ticket of the competition,
// and must not have been sold already. A prize never has more winning tickets than units.
func (r *Registry) Seed(ctx context.Context, prizeID uint64, numbers []int64) ([]models.WinningTicket, error) {
	normalized, errNormalize := normalize(numbers)
	if errNormalize != nil {
		return nil, errNormalize
	}

	var seeded []models.WinningTicket
	errTx := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prize models.Prize
		if errLoad := loadPrize(tx, prizeID, &prize); errLoad != nil {
			return errLoad
		}
		competition, errLoad := loadCompetition(tx, prize.CompetitionID)
		if errLoad != nil {
			return errLoad
		}
		if errEditable := EnsureEditableTx(tx, prize.CompetitionID); errEditable != nil {
			return errEditable
		}

		var existing int64
		if errCount := tx.Model(&models.WinningTicket{}).Where("prize_id = ?", prize.ID).Count(&existing).Error; errCount != nil {
			return fmt.Errorf("winning: count seeded: %w", errCount)
		}
		if existing+int64(len(normalized)) > prize.TotalQuantity {
			return apperrors.New(apperrors.KindInvalidArgument,
				"prize %d has %d winning tickets of %d, cannot add %d", prize.ID, existing, prize.TotalQuantity, len(normalized))
		}

		phaseRange, errRange := PhaseRange(competition.TotalTickets, prize.Phase, competition.IsRaffle)
		if errRange != nil {
			return errRange
		}
		for _, n := range normalized {
			if !phaseRange.Contains(n) {
				return apperrors.New(apperrors.KindInvalidArgument,
					"ticket %d is outside phase %d range %d-%d", n, prize.Phase, phaseRange.First, phaseRange.Last)
			}
		}

		for _, chunk := range chunks(normalized) {
			var taken []models.WinningTicket
			if errFind := tx.Where("competition_id = ? AND ticket_number IN ?", competition.ID, chunk).
				Limit(1).Find(&taken).Error; errFind != nil {
				return fmt.Errorf("winning: check collisions: %w", errFind)
			}
			if len(taken) > 0 {
				return apperrors.New(apperrors.KindInvalidArgument,
					"ticket %d is already a winning ticket of prize %d", taken[0].TicketNumber, taken[0].PrizeID)
			}
			var sold []models.EntryTicket
			if errFind := tx.Where("competition_id = ? AND ticket_number IN ?", competition.ID, chunk).
				Limit(1).Find(&sold).Error; errFind != nil {
				return fmt.Errorf("winning: check sold tickets: %w", errFind)
			}
			if len(sold) > 0 {
				return apperrors.New(apperrors.KindInvalidArgument, "ticket %d has already been sold", sold[0].TicketNumber)
			}
		}

		seeded = make([]models.WinningTicket, 0, len(normalized))
		for _, n := range normalized {
			seeded = append(seeded, models.WinningTicket{
				CompetitionID: competition.ID,
				TicketNumber:  n,
				PrizeID:       prize.ID,
				Status:        models.WinningTicketAvailable,
			})
		}
		if errCreate := tx.CreateInBatches(&seeded, inChunk).Error; errCreate != nil {
			return fmt.Errorf("winning: seed: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return seeded, nil
}

// FindMatches intersects ticket numbers with the winning tickets of a competition.
func (r *Registry) FindMatches(ctx context.Context, competitionID uint64, numbers []int64) ([]Match, error) {
	return FindMatchesTx(r.db.WithContext(ctx), competitionID, numbers)
}

// FindMatchesTx is FindMatches within an existing transaction. A contiguous block is
// checked with a single range scan on the (competition_id, ticket_number) index.
func FindMatchesTx(tx *gorm.DB, competitionID uint64, numbers []int64) ([]Match, error) {
	if len(numbers) == 0 {
		return nil, nil
	}
	sorted := make([]int64, len(numbers))
	copy(sorted, numbers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = dedupeSorted(sorted)

	var rows []models.WinningTicket
	if isContiguous(sorted) {
		if errFind := tx.Where("competition_id = ? AND ticket_number BETWEEN ? AND ?", competitionID, sorted[0], sorted[len(sorted)-1]).
			Order("ticket_number ASC").
			Find(&rows).Error; errFind != nil {
			return nil, fmt.Errorf("winning: find matches: %w", errFind)
		}
	} else {
		for _, chunk := range chunks(sorted) {
			var part []models.WinningTicket
			if errFind := tx.Where("competition_id = ? AND ticket_number IN ?", competitionID, chunk).
				Order("ticket_number ASC").
				Find(&part).Error; errFind != nil {
				return nil, fmt.Errorf("winning: find matches: %w", errFind)
			}
			rows = append(rows, part...)
		}
	}

	out := make([]Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, Match{
			WinningTicketID: row.ID,
			TicketNumber:    row.TicketNumber,
			PrizeID:         row.PrizeID,
			Status:          row.Status,
		})
	}
	return out, nil
}

// ListWinningTickets returns the winning tickets of a prize.
func (r *Registry) ListWinningTickets(ctx context.Context, prizeID uint64) ([]models.WinningTicket, error) {
	var rows []models.WinningTicket
	if errFind := r.db.WithContext(ctx).
		Where("prize_id = ?", prizeID).
		Order("ticket_number ASC").
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("winning: list winning tickets: %w", errFind)
	}
	return rows, nil
}

func loadPrize(tx *gorm.DB, prizeID uint64, out *models.Prize) error {
	errFind := tx.Where("id = ?", prizeID).Take(out).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return apperrors.New(apperrors.KindNotFound, "prize %d not found", prizeID)
	}
	if errFind != nil {
		return fmt.Errorf("winning: load prize: %w", errFind)
	}
	return nil
}

func loadCompetition(tx *gorm.DB, competitionID uint64) (*models.Competition, error) {
	var competition models.Competition
	errFind := tx.Where("id = ?", competitionID).Take(&competition).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.KindNotFound, "competition %d not found", competitionID)
	}
	if errFind != nil {
		return nil, fmt.Errorf("winning: load competition: %w", errFind)
	}
	return &competition, nil
}

func normalize(numbers []int64) ([]int64, error) {
	if len(numbers) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidArgument, "no winning numbers supplied")
	}
	out := make([]int64, len(numbers))
	copy(out, numbers)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	for i := 1; i < len(out); i++ {
		if out[i] == out[i-1] {
			return nil, apperrors.New(apperrors.KindInvalidArgument, "winning number %d supplied twice", out[i])
		}
	}
	return out, nil
}

func dedupeSorted(sorted []int64) []int64 {
	out := sorted[:1]
	for _, n := range sorted[1:] {
		if n != out[len(out)-1] {
			out = append(out, n)
		}
	}
	return out
}

func isContiguous(sorted []int64) bool {
	return sorted[len(sorted)-1]-sorted[0] == int64(len(sorted)-1)
}

func chunks(numbers []int64) [][]int64 {
	var out [][]int64
	for start := 0; start < len(numbers); start += inChunk {
		end := start + inChunk
		if end > len(numbers) {
			end = len(numbers)
		}
		out = append(out, numbers[start:end])
	}
	return out
}
