package autotask

import (
	"fmt"
	"time"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

// Policy decides whether an auto-task may be claimed. Daily tasks reset at midnight in
// Location, not on a rolling 24h window.
type Policy struct {
	Location *time.Location
}

// ClaimContext is everything a policy decision looks at.
type ClaimContext struct {
	Task    *models.AutoTask
	Claim   *models.AutoTaskClaim
	Account *models.Account
	// WalletRewarded is set when any wallet verification task was already confirmed.
	WalletRewarded bool
	Now            time.Time
}

// Check returns nil when the claim is allowed, ErrAlreadyClaimed when it was already
// taken for the current period, or ErrForbidden when the wallet is missing.
func (p Policy) Check(c ClaimContext) error {
	confirmed := c.Claim != nil && c.Claim.IsConfirmed
	switch c.Task.VerificationMethod {
	case models.VerifyNone, models.VerifyWelcome:
		if confirmed {
			return fmt.Errorf("%w: %s", apperr.ErrAlreadyClaimed, c.Task.Name)
		}
	case models.VerifyDaily:
		if c.Claim != nil && c.Claim.LastCompletedAt != nil && p.sameDay(*c.Claim.LastCompletedAt, c.Now) {
			return fmt.Errorf("%w: %s already completed today", apperr.ErrAlreadyClaimed, c.Task.Name)
		}
	case models.VerifyWallet:
		if confirmed || c.WalletRewarded {
			return fmt.Errorf("%w: wallet connection reward", apperr.ErrAlreadyClaimed)
		}
		if c.Account == nil || !c.Account.HasWallet() {
			return apperr.Forbiddenf("wallet not connected")
		}
	default:
		return fmt.Errorf("%w: unknown verification method %q", apperr.ErrInvalidTransition, c.Task.VerificationMethod)
	}
	return nil
}

func (p Policy) sameDay(a, b time.Time) bool {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
