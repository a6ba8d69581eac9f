package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sudtfaucet/backend/internal/storage"
)

// Limiter 按键限流
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// IPRateLimiter 进程内令牌桶限流器，每个键一个 rate.Limiter
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter 创建每分钟 perMinute 次的限流器，突发量等于 perMinute
func NewIPRateLimiter(perMinute int) *IPRateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow 是否放行
func (l *IPRateLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Cleanup 清理长时间未访问的键
func (l *IPRateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
			removed++
		}
	}
	return removed
}

// RunCleanup 定期清理，直到 ctx 取消
func (l *IPRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// CounterRateLimiter 基于固定窗口计数的限流器，计数存放在共享存储中（多实例部署）
type CounterRateLimiter struct {
	repo   storage.RateLimitRepository
	limit  int64
	window time.Duration
	prefix string
	log    *zap.Logger
}

// NewCounterRateLimiter 创建计数限流器
func NewCounterRateLimiter(repo storage.RateLimitRepository, limit int, window time.Duration, prefix string, log *zap.Logger) *CounterRateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &CounterRateLimiter{
		repo:   repo,
		limit:  int64(limit),
		window: window,
		prefix: prefix,
		log:    log,
	}
}

// Allow 是否放行；计数存储出错时放行并记录日志
func (l *CounterRateLimiter) Allow(ctx context.Context, key string) bool {
	count, err := l.repo.IncrementRateLimit(ctx, fmt.Sprintf("%s:%s", l.prefix, key), l.window)
	if err != nil {
		l.log.Warn("rate limit counter unavailable", zap.Error(err))
		return true
	}
	return count <= l.limit
}

// RateLimitByIP 按客户端 IP 限流的中间件
func RateLimitByIP(limiter Limiter, limitType string, mm *MonitoringMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.Request.Context(), c.ClientIP()) {
			if mm != nil {
				mm.metrics.RecordRateLimitBlock(limitType)
			}
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
