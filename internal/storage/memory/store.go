package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/storage"
)

// Store 使用内存保存领取记录，主要用于开发验证和测试。
type Store struct {
	mu       sync.RWMutex
	records  map[uint64]*domain.ClaimRecord
	bySecret map[string]uint64 // secret -> id
	nextID   uint64

	// 速率限制相关
	rateLimits        map[string]*rateLimitEntry
	rateLimitsCleanup time.Time // 下次清理过期速率限制的时间

	now func() time.Time
}

// rateLimitEntry 速率限制条目
type rateLimitEntry struct {
	Count     int64
	ExpiresAt time.Time
}

var (
	_ storage.Store               = (*Store)(nil)
	_ storage.RateLimitRepository = (*Store)(nil)
)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		records:           make(map[uint64]*domain.ClaimRecord),
		bySecret:          make(map[string]uint64),
		rateLimits:        make(map[string]*rateLimitEntry),
		rateLimitsCleanup: time.Now().Add(5 * time.Minute),
		now:               time.Now,
	}
}

// InsertClaimRecords 批量写入，任一密钥重复则整批不写入
func (s *Store) InsertClaimRecords(_ context.Context, records []*domain.ClaimRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, ok := s.bySecret[r.Secret]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSecret, r.Secret)
		}
		if _, ok := seen[r.Secret]; ok {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSecret, r.Secret)
		}
		seen[r.Secret] = struct{}{}
	}

	now := s.now()
	for _, r := range records {
		s.nextID++
		r.ID = s.nextID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		r.UpdatedAt = now

		s.records[r.ID] = cloneRecord(r)
		s.bySecret[r.Secret] = r.ID
	}
	return nil
}

// GetClaimRecordBySecret 按密钥查询
func (s *Store) GetClaimRecordBySecret(_ context.Context, secret string) (*domain.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySecret[secret]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return cloneRecord(s.records[id]), nil
}

// ListClaimRecordsBySudtID 返回指定代币的全部记录，新记录在前
func (s *Store) ListClaimRecordsBySudtID(_ context.Context, sudtID string) ([]domain.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ClaimRecord, 0)
	for _, r := range s.records {
		if r.SudtID == sudtID {
			result = append(result, *cloneRecord(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// ListClaimRecordsByStatus 返回指定状态的最早 limit 条记录
func (s *Store) ListClaimRecordsByStatus(_ context.Context, status domain.ClaimStatus, limit int) ([]domain.ClaimRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ClaimRecord, 0)
	for _, r := range s.records {
		if r.Status == status {
			result = append(result, *cloneRecord(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// TransitionStatus 当前状态属于 from 时迁移到 to
func (s *Store) TransitionStatus(_ context.Context, secret string, from []domain.ClaimStatus, to domain.ClaimStatus) (bool, error) {
	if err := storage.CheckTransitions(from, to); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookupLocked(secret)
	if !ok || !containsStatus(from, r.Status) {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = s.now()
	return true, nil
}

// ClaimBySecret 领取：WaitForClaim -> WaitForTransfer，并写入领取地址
func (s *Store) ClaimBySecret(_ context.Context, secret, address string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.lookupLocked(secret)
	if !ok || r.Status != domain.StatusWaitForClaim {
		return false, nil
	}
	addr := address
	r.ClaimAddress = &addr
	r.Status = domain.StatusWaitForTransfer
	r.UpdatedAt = s.now()
	return true, nil
}

// TransitionStatusBySecrets 批量迁移，只有当前状态为 from 的记录会被更新
func (s *Store) TransitionStatusBySecrets(_ context.Context, secrets []string, from, to domain.ClaimStatus) (int64, error) {
	if err := domain.ValidateTransition(from, to); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var updated int64
	for _, secret := range secrets {
		r, ok := s.lookupLocked(secret)
		if !ok || r.Status != from {
			continue
		}
		r.Status = to
		r.UpdatedAt = now
		updated++
	}
	return updated, nil
}

// IncrementRateLimit 增加限流计数，窗口过期后重新计数
func (s *Store) IncrementRateLimit(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.After(s.rateLimitsCleanup) {
		for k, entry := range s.rateLimits {
			if now.After(entry.ExpiresAt) {
				delete(s.rateLimits, k)
			}
		}
		s.rateLimitsCleanup = now.Add(5 * time.Minute)
	}

	entry, ok := s.rateLimits[key]
	if !ok || now.After(entry.ExpiresAt) {
		entry = &rateLimitEntry{ExpiresAt: now.Add(window)}
		s.rateLimits[key] = entry
	}
	entry.Count++
	return entry.Count, nil
}

// Close 内存存储无需释放资源
func (s *Store) Close() error {
	return nil
}

// Health 内存存储始终可用
func (s *Store) Health() error {
	return nil
}

func (s *Store) lookupLocked(secret string) (*domain.ClaimRecord, bool) {
	id, ok := s.bySecret[secret]
	if !ok {
		return nil, false
	}
	r, ok := s.records[id]
	return r, ok
}

func containsStatus(list []domain.ClaimStatus, status domain.ClaimStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

// cloneRecord 深拷贝，避免调用方修改存储中的数据
func cloneRecord(r *domain.ClaimRecord) *domain.ClaimRecord {
	c := *r
	if r.ClaimAddress != nil {
		addr := *r.ClaimAddress
		c.ClaimAddress = &addr
	}
	return &c
}
