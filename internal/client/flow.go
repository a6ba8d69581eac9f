package client

import (
	"context"
	"errors"
	"sync"

	"sudtfaucet/backend/internal/domain"
)

// FlowState 领取页面状态
type FlowState string

const (
	FlowUnclaimed FlowState = "unclaimed"
	FlowClaiming  FlowState = "claiming"
	FlowClaimed   FlowState = "claimed"
	FlowDisabled  FlowState = "disabled"
)

var (
	// ErrClaimNotFound 密钥不存在
	ErrClaimNotFound = errors.New("claim not found")
	// ErrNotClaimable 当前状态不能发起领取
	ErrNotClaimable = errors.New("claim is not in unclaimed state")
)

// ClaimAPI 领取流程依赖的两个 RPC 方法
type ClaimAPI interface {
	GetClaimHistory(ctx context.Context, secret string) (*domain.ClaimHistory, error)
	ClaimSudt(ctx context.Context, secret, address string) error
}

// ClaimFlow 领取方页面的状态机
//
// 状态总是从服务端投影重新推导，不跨 Flow 实例保存。disabled 为终态。
type ClaimFlow struct {
	api    ClaimAPI
	secret string

	mu      sync.Mutex
	state   FlowState
	history *domain.ClaimHistory
}

// NewClaimFlow 创建领取流程，调用 Refresh 之后状态才可用
func NewClaimFlow(api ClaimAPI, secret string) *ClaimFlow {
	return &ClaimFlow{api: api, secret: secret}
}

// State 当前状态
func (f *ClaimFlow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History 最近一次读取到的投影
func (f *ClaimFlow) History() *domain.ClaimHistory {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history
}

// Settled 链上转账已经完成（拿到了真实交易哈希）
func (f *ClaimFlow) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != FlowClaimed || f.history == nil {
		return false
	}
	tx := f.history.ClaimStatus.TxHash
	return tx != "" && tx != domain.PendingTxHash
}

// Refresh 从服务端重新推导状态
func (f *ClaimFlow) Refresh(ctx context.Context) (FlowState, error) {
	history, err := f.api.GetClaimHistory(ctx, f.secret)
	if err != nil {
		return f.State(), err
	}
	if history == nil {
		return f.State(), ErrClaimNotFound
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = history
	f.state = derive(history.ClaimStatus.Status)
	return f.state, nil
}

// Claim 从 unclaimed 发起领取；失败时回到 unclaimed 并返回服务端错误
func (f *ClaimFlow) Claim(ctx context.Context, address string) (FlowState, error) {
	f.mu.Lock()
	if f.state != FlowUnclaimed {
		f.mu.Unlock()
		return f.state, ErrNotClaimable
	}
	f.state = FlowClaiming
	f.mu.Unlock()

	if err := f.api.ClaimSudt(ctx, f.secret, address); err != nil {
		f.mu.Lock()
		f.state = FlowUnclaimed
		f.mu.Unlock()
		return FlowUnclaimed, err
	}

	state, err := f.Refresh(ctx)
	if err != nil {
		// 领取已经提交，读取失败时保持 claiming 等待下次刷新
		f.mu.Lock()
		f.state = FlowClaiming
		f.mu.Unlock()
		return FlowClaiming, err
	}
	return state, nil
}

func derive(status domain.PublicClaimStatus) FlowState {
	switch status {
	case domain.PublicClaimed:
		return FlowClaimed
	case domain.PublicDisabled:
		return FlowDisabled
	default:
		return FlowUnclaimed
	}
}
