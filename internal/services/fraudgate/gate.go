package fraudgate

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civicstack/grievance-backend/internal/domain/model"
)

type Outcome string

const (
	// OutcomeAdmitted lets the submission proceed to duplicate detection
	// and creation.
	OutcomeAdmitted Outcome = "ADMITTED"

	// OutcomeBlockedPendingPenalty rejects before any side effect: the
	// submitter already owes a penalty.
	OutcomeBlockedPendingPenalty Outcome = "BLOCKED_PENDING_PENALTY"

	// OutcomeFlaggedFake rejects the submission and records a fresh block
	// plus penalty against the submitter.
	OutcomeFlaggedFake Outcome = "FLAGGED_FAKE"
)

// Decision reports the gate verdict and the penalty the submitter owes
// after it, zero when clean.
type Decision struct {
	Outcome    Outcome
	PenaltyDue int64
}

type StandingStore interface {
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (model.SubmitterStanding, error)
	ApplyPenalty(ctx context.Context, tx pgx.Tx, userID int64, amount int64, reason string, at time.Time) error
}

// Gate decides whether a submission is admitted into the workflow. It must
// run inside the submission transaction: the standing row lock serializes
// concurrent submissions per submitter, so two near-simultaneous fake
// reports cannot both slip past the block.
type Gate struct {
	standings     StandingStore
	penaltyAmount int64
	now           func() time.Time
}

func NewGate(standings StandingStore, penaltyAmount int64) *Gate {
	return &Gate{
		standings:     standings,
		penaltyAmount: penaltyAmount,
		now:           time.Now,
	}
}

// Admit applies the three-step decision order: unpaid block wins over
// everything, then a fake flag blocks and charges, otherwise the submission
// passes with the current balance echoed.
func (g *Gate) Admit(ctx context.Context, tx pgx.Tx, userID int64, flaggedFake bool) (Decision, error) {
	if g.standings == nil {
		return Decision{}, fmt.Errorf("standing store is nil")
	}

	standing, err := g.standings.GetOrCreateForUpdate(ctx, tx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("load submitter standing: %w", err)
	}

	if standing.Blocked && !standing.PenaltyPaid {
		return Decision{
			Outcome:    OutcomeBlockedPendingPenalty,
			PenaltyDue: standing.PenaltyDue,
		}, nil
	}

	if flaggedFake {
		if err := g.standings.ApplyPenalty(ctx, tx, userID, g.penaltyAmount, "fake complaint detected", g.now().UTC()); err != nil {
			return Decision{}, fmt.Errorf("apply fake complaint penalty: %w", err)
		}
		return Decision{
			Outcome:    OutcomeFlaggedFake,
			PenaltyDue: standing.PenaltyDue + g.penaltyAmount,
		}, nil
	}

	return Decision{
		Outcome:    OutcomeAdmitted,
		PenaltyDue: standing.PenaltyDue,
	}, nil
}
