// Package cache 提供进程内的领取记录缓存，单实例部署且未配置 Redis 时替代 Redis 缓存。
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"sudtfaucet/backend/internal/domain"
)

// ErrCacheMiss 缓存中没有对应的键或已过期
var ErrCacheMiss = errors.New("not found in local cache")

// DefaultSize 默认最多缓存的记录数
const DefaultSize = 10000

type cacheEntry struct {
	record    *domain.ClaimRecord // 为空时只是状态标记
	rank      int
	expiresAt time.Time
}

// LocalCache 本地内存缓存（L1 缓存）
//
// 容量满时按 LRU 淘汰，读取时检查过期；存取都复制记录，调用方修改不会影响缓存。
// 条目带状态次序，次序更早的快照不会覆盖更新的快照或标记。
type LocalCache struct {
	mu      sync.Mutex
	entries *lru.Cache
	now     func() time.Time
}

// NewLocalCache 创建本地缓存，size <= 0 时使用 DefaultSize
func NewLocalCache(size int) (*LocalCache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LocalCache{entries: entries, now: time.Now}, nil
}

// CacheClaimRecord 缓存领取记录
func (c *LocalCache) CacheClaimRecord(_ context.Context, record *domain.ClaimRecord, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rank := record.Status.Rank()
	if c.newerLocked(record.Secret, rank) {
		return nil
	}
	cp := cloneRecord(record)
	c.entries.Add(record.Secret, &cacheEntry{
		record:    &cp,
		rank:      rank,
		expiresAt: c.now().Add(ttl),
	})
	return nil
}

// GetCachedClaimRecord 获取缓存的领取记录
func (c *LocalCache) GetCachedClaimRecord(_ context.Context, secret string) (*domain.ClaimRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, ok := c.entries.Get(secret)
	if !ok {
		return nil, ErrCacheMiss
	}
	entry := val.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.entries.Remove(secret)
		return nil, ErrCacheMiss
	}
	if entry.record == nil {
		return nil, ErrCacheMiss
	}
	record := cloneRecord(entry.record)
	return &record, nil
}

// FenceClaimRecords 用状态 to 的标记替换缓存的快照
func (c *LocalCache) FenceClaimRecords(_ context.Context, to domain.ClaimStatus, ttl time.Duration, secrets ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rank := to.Rank()
	expiresAt := c.now().Add(ttl)
	for _, secret := range secrets {
		if c.newerLocked(secret, rank) {
			continue
		}
		c.entries.Add(secret, &cacheEntry{rank: rank, expiresAt: expiresAt})
	}
	return nil
}

// newerLocked 是否已有未过期且次序更靠后的条目
func (c *LocalCache) newerLocked(secret string, rank int) bool {
	val, ok := c.entries.Peek(secret)
	if !ok {
		return false
	}
	entry := val.(*cacheEntry)
	return c.now().Before(entry.expiresAt) && entry.rank > rank
}

// Len 当前缓存条目数（含状态标记和未清理的过期条目）
func (c *LocalCache) Len() int {
	return c.entries.Len()
}

func cloneRecord(r *domain.ClaimRecord) domain.ClaimRecord {
	cp := *r
	if r.ClaimAddress != nil {
		addr := *r.ClaimAddress
		cp.ClaimAddress = &addr
	}
	return cp
}
