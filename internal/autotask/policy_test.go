package autotask

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/memefactory/backend/internal/apperr"
	"github.com/memefactory/backend/internal/models"
)

func TestPolicyCheck(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 5, 10, 1, 30, 0, 0, loc) // 22:30 UTC on May 9
	sameLocalDay := time.Date(2024, 5, 10, 0, 5, 0, 0, loc)
	previousLocalDay := time.Date(2024, 5, 9, 23, 50, 0, 0, loc)
	wallet := "EQD4FPq-PRDieyQKkizFTRtSDyucUIqrj0v_zXJmqaDp6_0t"

	confirmed := func(at time.Time) *models.AutoTaskClaim {
		return &models.AutoTaskClaim{IsConfirmed: true, LastCompletedAt: &at}
	}

	cases := []struct {
		name    string
		ctx     ClaimContext
		wantErr error
	}{
		{
			name: "none never claimed",
			ctx:  ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyNone}},
		},
		{
			name:    "none already claimed",
			ctx:     ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyNone}, Claim: confirmed(previousLocalDay)},
			wantErr: apperr.ErrAlreadyClaimed,
		},
		{
			name:    "welcome already claimed",
			ctx:     ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyWelcome}, Claim: confirmed(previousLocalDay)},
			wantErr: apperr.ErrAlreadyClaimed,
		},
		{
			name: "welcome unconfirmed record",
			ctx:  ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyWelcome}, Claim: &models.AutoTaskClaim{}},
		},
		{
			name:    "daily same local day",
			ctx:     ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyDaily}, Claim: confirmed(sameLocalDay)},
			wantErr: apperr.ErrAlreadyClaimed,
		},
		{
			name: "daily previous local day within 24h",
			ctx:  ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyDaily}, Claim: confirmed(previousLocalDay)},
		},
		{
			name: "daily first time",
			ctx:  ClaimContext{Task: &models.AutoTask{VerificationMethod: models.VerifyDaily}},
		},
		{
			name: "wallet connected",
			ctx: ClaimContext{
				Task:    &models.AutoTask{VerificationMethod: models.VerifyWallet},
				Account: &models.Account{WalletAddress: &wallet},
			},
		},
		{
			name: "wallet missing",
			ctx: ClaimContext{
				Task:    &models.AutoTask{VerificationMethod: models.VerifyWallet},
				Account: &models.Account{},
			},
			wantErr: apperr.ErrForbidden,
		},
		{
			name: "wallet already rewarded by another task",
			ctx: ClaimContext{
				Task:           &models.AutoTask{VerificationMethod: models.VerifyWallet},
				Account:        &models.Account{WalletAddress: &wallet},
				WalletRewarded: true,
			},
			wantErr: apperr.ErrAlreadyClaimed,
		},
		{
			name:    "unknown method",
			ctx:     ClaimContext{Task: &models.AutoTask{VerificationMethod: "SOCIAL"}},
			wantErr: apperr.ErrInvalidTransition,
		},
	}

	p := Policy{Location: loc}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.ctx.Now = now
			err := p.Check(tc.ctx)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPolicy_DayBoundaryFollowsLocation(t *testing.T) {
	last := time.Date(2024, 5, 9, 22, 0, 0, 0, time.UTC)
	now := time.Date(2024, 5, 9, 23, 0, 0, 0, time.UTC)
	ctx := ClaimContext{
		Task:  &models.AutoTask{VerificationMethod: models.VerifyDaily},
		Claim: &models.AutoTaskClaim{IsConfirmed: true, LastCompletedAt: &last},
		Now:   now,
	}

	assert.ErrorIs(t, Policy{Location: time.UTC}.Check(ctx), apperr.ErrAlreadyClaimed)
	// 01:00 and 02:00 on May 10 at +3.
	assert.ErrorIs(t, Policy{Location: time.FixedZone("+3", 3*3600)}.Check(ctx), apperr.ErrAlreadyClaimed)
	// At +1:30 the two instants straddle local midnight.
	assert.NoError(t, Policy{Location: time.FixedZone("+1:30", 90*60)}.Check(ctx))
}
