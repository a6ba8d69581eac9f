package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"sudtfaucet/backend/internal/domain"
)

// ErrCacheMiss 缓存中没有对应的键
var ErrCacheMiss = errors.New("not found in cache")

const keyPrefix = "sudtfaucet:"

// Cache Redis 缓存实现
type Cache struct {
	client *goredis.Client
}

// NewCache 基于已建立的连接创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client.Client()}
}

func claimKey(secret string) string {
	return fmt.Sprintf("%sclaim:%s", keyPrefix, secret)
}

// ========== 领取记录缓存 ==========

// 记录以哈希保存：rank 为状态次序，data 为记录 JSON；只有 rank 时表示状态标记。
// 两个脚本都只在已有次序不更靠后时写入，保证晚到的旧快照不会覆盖新状态。
var (
	cacheRecordScript = goredis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], 'rank'))
if cur and cur > tonumber(ARGV[1]) then
  return 0
end
redis.call('HSET', KEYS[1], 'rank', ARGV[1], 'data', ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
end
return 1
`)

	fenceRecordsScript = goredis.NewScript(`
local n = 0
for _, key in ipairs(KEYS) do
  local cur = tonumber(redis.call('HGET', key, 'rank'))
  if not cur or cur <= tonumber(ARGV[1]) then
    redis.call('DEL', key)
    redis.call('HSET', key, 'rank', ARGV[1])
    if tonumber(ARGV[2]) > 0 then
      redis.call('PEXPIRE', key, ARGV[2])
    end
    n = n + 1
  end
end
return n
`)
)

// CacheClaimRecord 缓存领取记录，已有更新的状态时不写入
func (c *Cache) CacheClaimRecord(ctx context.Context, record *domain.ClaimRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return cacheRecordScript.Run(ctx, c.client,
		[]string{claimKey(record.Secret)},
		record.Status.Rank(), data, ttl.Milliseconds(),
	).Err()
}

// GetCachedClaimRecord 获取缓存的领取记录，状态标记视为未命中
func (c *Cache) GetCachedClaimRecord(ctx context.Context, secret string) (*domain.ClaimRecord, error) {
	data, err := c.client.HGet(ctx, claimKey(secret), "data").Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var record domain.ClaimRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// FenceClaimRecords 用状态 to 的标记替换缓存的领取记录
func (c *Cache) FenceClaimRecords(ctx context.Context, to domain.ClaimStatus, ttl time.Duration, secrets ...string) error {
	if len(secrets) == 0 {
		return nil
	}
	keys := make([]string, len(secrets))
	for i, secret := range secrets {
		keys[i] = claimKey(secret)
	}
	return fenceRecordsScript.Run(ctx, c.client, keys, to.Rank(), ttl.Milliseconds()).Err()
}

// ========== 限流缓存 ==========

// IncrementRateLimit 增加限流计数
func (c *Cache) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.Pipeline()

	// 增加计数
	incr := pipe.Incr(ctx, keyPrefix+"ratelimit:"+key)

	// 只在新键上设置过期时间，窗口不随访问延长
	pipe.ExpireNX(ctx, keyPrefix+"ratelimit:"+key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// ========== 状态变更通知 ==========

// statusChannel 领取状态变更的发布订阅频道
const statusChannel = keyPrefix + "claim-status"

// PublishStatusChange 发布领取状态变更，多实例部署时用于同步 websocket 推送
func (c *Cache) PublishStatusChange(ctx context.Context, secret string) error {
	return c.client.Publish(ctx, statusChannel, secret).Err()
}

// SubscribeStatusChanges 订阅领取状态变更，回调参数为密钥；ctx 取消时返回
func (c *Cache) SubscribeStatusChanges(ctx context.Context, handle func(secret string)) error {
	sub := c.client.Subscribe(ctx, statusChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			handle(msg.Payload)
		}
	}
}
