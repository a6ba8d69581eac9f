package storage

import (
	"context"
	"fmt"
	"time"

	"sudtfaucet/backend/internal/domain"
)

// ClaimRepository 定义领取记录数据存取操作。
//
// 所有状态变更都是针对 status 的条件更新，返回 false 表示没有行满足前置状态。
type ClaimRepository interface {
	// InsertClaimRecords 在一个事务中批量写入，任一失败则全部回滚
	InsertClaimRecords(ctx context.Context, records []*domain.ClaimRecord) error
	GetClaimRecordBySecret(ctx context.Context, secret string) (*domain.ClaimRecord, error)
	// ListClaimRecordsBySudtID 按创建时间倒序
	ListClaimRecordsBySudtID(ctx context.Context, sudtID string) ([]domain.ClaimRecord, error)
	// ListClaimRecordsByStatus 按创建时间正序，最多 limit 条
	ListClaimRecordsByStatus(ctx context.Context, status domain.ClaimStatus, limit int) ([]domain.ClaimRecord, error)
	TransitionStatus(ctx context.Context, secret string, from []domain.ClaimStatus, to domain.ClaimStatus) (bool, error)
	// ClaimBySecret WaitForClaim -> WaitForTransfer 并写入领取地址
	ClaimBySecret(ctx context.Context, secret, address string) (bool, error)
	TransitionStatusBySecrets(ctx context.Context, secrets []string, from, to domain.ClaimStatus) (int64, error)
}

// RateLimitRepository 定义限流计数操作。
type RateLimitRepository interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Store 定义完整的存储接口。
type Store interface {
	ClaimRepository

	// 工具方法
	Close() error
	Health() error
}

// CheckTransitions 校验每个前置状态都允许迁移到 to
func CheckTransitions(from []domain.ClaimStatus, to domain.ClaimStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: no source status for %s", domain.ErrInvalidTransition, to)
	}
	for _, f := range from {
		if err := domain.ValidateTransition(f, to); err != nil {
			return err
		}
	}
	return nil
}
