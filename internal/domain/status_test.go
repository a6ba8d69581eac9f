package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimStatus_Transitions(t *testing.T) {
	allowed := map[[2]ClaimStatus]bool{
		{StatusWaitForSendMail, StatusWaitForClaim}:                     true,
		{StatusWaitForSendMail, StatusSendMailError}:                    true,
		{StatusWaitForSendMail, StatusDisabled}:                         true,
		{StatusWaitForClaim, StatusWaitForTransfer}:                     true,
		{StatusWaitForClaim, StatusDisabled}:                            true,
		{StatusWaitForTransfer, StatusSendingTransaction}:               true,
		{StatusSendingTransaction, StatusWaitForTransactionCommit}:      true,
		{StatusSendingTransaction, StatusTransferSudtError}:             true,
		{StatusWaitForTransactionCommit, StatusWaitForTransactionConfirm}: true,
		{StatusWaitForTransactionCommit, StatusTransferSudtError}:       true,
		{StatusWaitForTransactionConfirm, StatusDone}:                   true,
		{StatusWaitForTransactionConfirm, StatusTransferSudtError}:      true,
	}

	// 穷举所有状态对，只有表中的边被允许
	for _, from := range AllClaimStatuses {
		for _, to := range AllClaimStatuses {
			want := allowed[[2]ClaimStatus{from, to}]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)

			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
			}
		}
	}
}

func TestClaimStatus_RankIncreasesAlongTransitions(t *testing.T) {
	for _, from := range AllClaimStatuses {
		require.GreaterOrEqual(t, from.Rank(), 0, from)
		for _, to := range AllClaimStatuses {
			if from.CanTransitionTo(to) {
				assert.Greater(t, to.Rank(), from.Rank(), "%s -> %s", from, to)
			}
		}
	}
	assert.Equal(t, -1, ClaimStatus("Unknown").Rank())
}

func TestClaimStatus_Disableable(t *testing.T) {
	for _, s := range AllClaimStatuses {
		want := s == StatusWaitForSendMail || s == StatusWaitForClaim
		assert.Equal(t, want, s.Disableable(), s.String())
	}
}

func TestClaimStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusDisabled.IsTerminal())
	assert.True(t, StatusTransferSudtError.IsTerminal())
	assert.True(t, StatusSendMailError.IsTerminal())
	assert.False(t, StatusWaitForClaim.IsTerminal())
	assert.False(t, ClaimStatus("Bogus").IsTerminal())
}

func TestParseClaimStatus(t *testing.T) {
	s, err := ParseClaimStatus("WaitForClaim")
	require.NoError(t, err)
	assert.Equal(t, StatusWaitForClaim, s)

	_, err = ParseClaimStatus("unclaimed")
	assert.ErrorIs(t, err, ErrUnknownStatus)

	assert.ErrorIs(t, ValidateTransition("Bogus", StatusDone), ErrUnknownStatus)
}

func TestSourcesOf(t *testing.T) {
	assert.ElementsMatch(t, []ClaimStatus{StatusWaitForSendMail, StatusWaitForClaim}, SourcesOf(StatusDisabled))
	assert.Equal(t, []ClaimStatus{StatusWaitForClaim}, SourcesOf(StatusWaitForTransfer))
}

func TestProjectClaimHistory(t *testing.T) {
	created := time.UnixMilli(1700000000000)
	address := "ckt1qyqaddr"

	t.Run("未领取状态", func(t *testing.T) {
		for _, s := range []ClaimStatus{StatusWaitForSendMail, StatusWaitForClaim} {
			h, err := ProjectClaimHistory(&ClaimRecord{Status: s, CreatedAt: created, Secret: "abc"})
			require.NoError(t, err)
			assert.Equal(t, PublicUnclaimed, h.ClaimStatus.Status)
			assert.Nil(t, h.ClaimStatus.ClaimedAt)
			assert.Equal(t, int64(1700000000000), h.CreatedAt)
			assert.Equal(t, "abc", h.ClaimSecret)
		}
	})

	t.Run("已领取家族状态", func(t *testing.T) {
		claimed := []ClaimStatus{
			StatusWaitForTransfer, StatusSendingTransaction, StatusWaitForTransactionCommit,
			StatusWaitForTransactionConfirm, StatusDone, StatusTransferSudtError, StatusSendMailError,
		}
		for _, s := range claimed {
			h, err := ProjectClaimHistory(&ClaimRecord{Status: s, ClaimAddress: &address})
			require.NoError(t, err)
			assert.Equal(t, PublicClaimed, h.ClaimStatus.Status, s.String())
			assert.Equal(t, PendingTxHash, h.ClaimStatus.TxHash)
			require.NotNil(t, h.ClaimStatus.ClaimedAt)
			assert.Equal(t, int64(0), *h.ClaimStatus.ClaimedAt)
			assert.Equal(t, address, h.ClaimStatus.Address)
		}
	})

	t.Run("已禁用状态", func(t *testing.T) {
		h, err := ProjectClaimHistory(&ClaimRecord{Status: StatusDisabled})
		require.NoError(t, err)
		assert.Equal(t, PublicDisabled, h.ClaimStatus.Status)
	})

	t.Run("未知状态报错", func(t *testing.T) {
		_, err := ProjectClaimHistory(&ClaimRecord{Status: "Bogus"})
		assert.ErrorIs(t, err, ErrUnknownStatus)
	})
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
