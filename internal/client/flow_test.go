package client

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sudtfaucet/backend/internal/domain"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetClaimHistory(ctx context.Context, secret string) (*domain.ClaimHistory, error) {
	args := m.Called(ctx, secret)
	h, _ := args.Get(0).(*domain.ClaimHistory)
	return h, args.Error(1)
}

func (m *mockAPI) ClaimSudt(ctx context.Context, secret, address string) error {
	return m.Called(ctx, secret, address).Error(0)
}

func history(status domain.PublicClaimStatus, txHash string) *domain.ClaimHistory {
	return &domain.ClaimHistory{
		ClaimSecret: "s",
		ClaimStatus: domain.ClaimStatusView{Status: status, TxHash: txHash},
	}
}

func TestClaimFlow_Refresh(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		status domain.PublicClaimStatus
		want   FlowState
	}{
		{"未领取", domain.PublicUnclaimed, FlowUnclaimed},
		{"已领取", domain.PublicClaimed, FlowClaimed},
		{"已禁用", domain.PublicDisabled, FlowDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := new(mockAPI)
			api.On("GetClaimHistory", ctx, "s").Return(history(tt.status, ""), nil)

			state, err := NewClaimFlow(api, "s").Refresh(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}

	t.Run("密钥不存在", func(t *testing.T) {
		api := new(mockAPI)
		api.On("GetClaimHistory", ctx, "s").Return(nil, nil)

		_, err := NewClaimFlow(api, "s").Refresh(ctx)
		assert.ErrorIs(t, err, ErrClaimNotFound)
	})
}

func TestClaimFlow_Claim(t *testing.T) {
	ctx := context.Background()

	t.Run("成功", func(t *testing.T) {
		api := new(mockAPI)
		api.On("GetClaimHistory", ctx, "s").Return(history(domain.PublicUnclaimed, ""), nil).Once()
		api.On("ClaimSudt", ctx, "s", "ckt1q").Return(nil).Once()
		api.On("GetClaimHistory", ctx, "s").Return(history(domain.PublicClaimed, domain.PendingTxHash), nil).Once()

		flow := NewClaimFlow(api, "s")
		_, err := flow.Refresh(ctx)
		require.NoError(t, err)

		state, err := flow.Claim(ctx, "ckt1q")
		require.NoError(t, err)
		assert.Equal(t, FlowClaimed, state)
		assert.False(t, flow.Settled())
		api.AssertExpectations(t)
	})

	t.Run("服务端拒绝后回到未领取", func(t *testing.T) {
		api := new(mockAPI)
		api.On("GetClaimHistory", ctx, "s").Return(history(domain.PublicUnclaimed, ""), nil).Once()
		api.On("ClaimSudt", ctx, "s", "ckt1q").Return(errors.New("boom")).Once()

		flow := NewClaimFlow(api, "s")
		_, err := flow.Refresh(ctx)
		require.NoError(t, err)

		state, err := flow.Claim(ctx, "ckt1q")
		assert.EqualError(t, err, "boom")
		assert.Equal(t, FlowUnclaimed, state)
		assert.Equal(t, FlowUnclaimed, flow.State())
	})

	t.Run("禁用后不能领取", func(t *testing.T) {
		api := new(mockAPI)
		api.On("GetClaimHistory", ctx, "s").Return(history(domain.PublicDisabled, ""), nil).Once()

		flow := NewClaimFlow(api, "s")
		_, err := flow.Refresh(ctx)
		require.NoError(t, err)

		state, err := flow.Claim(ctx, "ckt1q")
		assert.ErrorIs(t, err, ErrNotClaimable)
		assert.Equal(t, FlowDisabled, state)
		api.AssertNotCalled(t, "ClaimSudt", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("未刷新不能领取", func(t *testing.T) {
		_, err := NewClaimFlow(new(mockAPI), "s").Claim(ctx, "ckt1q")
		assert.ErrorIs(t, err, ErrNotClaimable)
	})
}

func TestClaimFlow_Settled(t *testing.T) {
	ctx := context.Background()
	api := new(mockAPI)
	api.On("GetClaimHistory", ctx, "s").Return(history(domain.PublicClaimed, "0xabc"), nil)

	flow := NewClaimFlow(api, "s")
	_, err := flow.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, flow.Settled())
	assert.Equal(t, "0xabc", flow.History().ClaimStatus.TxHash)
}
