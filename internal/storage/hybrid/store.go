package hybrid

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/storage"
)

// Cache 混合存储依赖的缓存能力，由 storage/redis.Cache 和 cache.LocalCache 实现
//
// 状态只会沿迁移表前进，实现需按 ClaimStatus.Rank 比较新旧：已缓存的快照或标记
// 次序更靠后时，CacheClaimRecord 必须放弃写入。
type Cache interface {
	CacheClaimRecord(ctx context.Context, record *domain.ClaimRecord, ttl time.Duration) error
	GetCachedClaimRecord(ctx context.Context, secret string) (*domain.ClaimRecord, error)
	// FenceClaimRecords 丢弃旧快照，只留下状态 to 的标记，之后次序更早的回填会被拒绝
	FenceClaimRecords(ctx context.Context, to domain.ClaimStatus, ttl time.Duration, secrets ...string) error
}

// Store 混合存储实现，结合 SQL 数据库和 Redis
//
// 读按密钥走缓存，所有写操作先落库再在缓存中留下新状态的标记，
// 这样并发读在写之前查到的旧快照无法再回填进缓存。缓存失败只记日志，不影响主流程。
type Store struct {
	db    storage.Store
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建混合存储实例
func NewStore(db storage.Store, cache Cache, ttl time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		db:    db,
		cache: cache,
		ttl:   ttl,
		log:   log.With(zap.String("component", "hybrid-store")),
	}
}

// InsertClaimRecords 新记录直接落库，不预热缓存
func (s *Store) InsertClaimRecords(ctx context.Context, records []*domain.ClaimRecord) error {
	return s.db.InsertClaimRecords(ctx, records)
}

// GetClaimRecordBySecret 先尝试从 Redis 获取
func (s *Store) GetClaimRecordBySecret(ctx context.Context, secret string) (*domain.ClaimRecord, error) {
	if record, err := s.cache.GetCachedClaimRecord(ctx, secret); err == nil {
		return record, nil
	}

	record, err := s.db.GetClaimRecordBySecret(ctx, secret)
	if err != nil {
		return nil, err
	}

	if err := s.cache.CacheClaimRecord(ctx, record, s.ttl); err != nil {
		s.log.Warn("failed to cache claim record", zap.Error(err))
	}
	return record, nil
}

// ListClaimRecordsBySudtID 列表查询不缓存
func (s *Store) ListClaimRecordsBySudtID(ctx context.Context, sudtID string) ([]domain.ClaimRecord, error) {
	return s.db.ListClaimRecordsBySudtID(ctx, sudtID)
}

// ListClaimRecordsByStatus 列表查询不缓存
func (s *Store) ListClaimRecordsByStatus(ctx context.Context, status domain.ClaimStatus, limit int) ([]domain.ClaimRecord, error) {
	return s.db.ListClaimRecordsByStatus(ctx, status, limit)
}

// TransitionStatus 落库后标记缓存
func (s *Store) TransitionStatus(ctx context.Context, secret string, from []domain.ClaimStatus, to domain.ClaimStatus) (bool, error) {
	ok, err := s.db.TransitionStatus(ctx, secret, from, to)
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(ctx, to, secret)
	}
	return ok, nil
}

// ClaimBySecret 落库后标记缓存
func (s *Store) ClaimBySecret(ctx context.Context, secret, address string) (bool, error) {
	ok, err := s.db.ClaimBySecret(ctx, secret, address)
	if err != nil {
		return false, err
	}
	if ok {
		s.invalidate(ctx, domain.StatusWaitForTransfer, secret)
	}
	return ok, nil
}

// TransitionStatusBySecrets 落库后标记整批缓存
func (s *Store) TransitionStatusBySecrets(ctx context.Context, secrets []string, from, to domain.ClaimStatus) (int64, error) {
	n, err := s.db.TransitionStatusBySecrets(ctx, secrets, from, to)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, to, secrets...)
	}
	return n, nil
}

// Close 关闭底层数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Health 以数据库状态为准
func (s *Store) Health() error {
	return s.db.Health()
}

func (s *Store) invalidate(ctx context.Context, to domain.ClaimStatus, secrets ...string) {
	if err := s.cache.FenceClaimRecords(ctx, to, s.ttl, secrets...); err != nil {
		s.log.Warn("failed to invalidate claim cache", zap.Int("count", len(secrets)), zap.Error(err))
	}
}
