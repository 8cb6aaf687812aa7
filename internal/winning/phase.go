package winning

import (
	"github.com/rafflehq/ticket-engine/internal/apperrors"
	"github.com/rafflehq/ticket-engine/internal/models"
)

// MaxPhase is the highest prize phase. Phases split the ticket range into thirds.
const MaxPhase = 3

// Range is an inclusive ticket number range.
type Range struct {
	First int64
	Last  int64
}

// Contains reports whether n lies in the range.
func (r Range) Contains(n int64) bool {
	return n >= r.First && n <= r.Last
}

// PhaseRange returns the ticket numbers eligible for a prize phase. Raffle competitions
// and phase 0 use the full range. Otherwise the range is cut into thirds by integer
// division and phase 3 takes the remainder.
func PhaseRange(totalTickets int64, phase int, raffle bool) (Range, error) {
	if totalTickets <= 0 {
		return Range{}, apperrors.New(apperrors.KindInvalidArgument, "competition has no tickets")
	}
	if raffle || phase == models.PhaseRaffle {
		return Range{First: 1, Last: totalTickets}, nil
	}
	third := totalTickets / 3
	switch phase {
	case 1:
		return Range{First: 1, Last: third}, nil
	case 2:
		return Range{First: third + 1, Last: 2 * third}, nil
	case 3:
		return Range{First: 2*third + 1, Last: totalTickets}, nil
	default:
		return Range{}, apperrors.New(apperrors.KindInvalidArgument, "phase must be between 0 and %d, got %d", MaxPhase, phase)
	}
}
