package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sudtfaucet/backend/internal/auth"
	jwtpkg "sudtfaucet/backend/internal/auth/jwt"
	localcache "sudtfaucet/backend/internal/cache"
	"sudtfaucet/backend/internal/config"
	"sudtfaucet/backend/internal/dispatch"
	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/health"
	"sudtfaucet/backend/internal/logger"
	"sudtfaucet/backend/internal/mailer"
	"sudtfaucet/backend/internal/middleware"
	"sudtfaucet/backend/internal/monitoring"
	"sudtfaucet/backend/internal/rpc"
	"sudtfaucet/backend/internal/service"
	"sudtfaucet/backend/internal/signer"
	"sudtfaucet/backend/internal/storage"
	"sudtfaucet/backend/internal/storage/hybrid"
	"sudtfaucet/backend/internal/storage/memory"
	redisstore "sudtfaucet/backend/internal/storage/redis"
	sqlstore "sudtfaucet/backend/internal/storage/sql"
	httptransport "sudtfaucet/backend/internal/transport/http"
	"sudtfaucet/backend/internal/websocket"
)

const version = "0.1.0"

// main 启动 JSON-RPC 服务、邮件派发循环和 websocket 推送。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting sudt faucet server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.String("owner", cfg.Owner.Address),
	)

	if err := run(cfg, log); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("server exited cleanly")
}

func run(cfg *config.Config, log *zap.Logger) error {
	signingKey, err := jwtpkg.NewSigningKey(cfg.JWT.Secret)
	if err != nil {
		return fmt.Errorf("failed to prepare jwt key: %w", err)
	}
	if cfg.JWT.Secret == "" {
		log.Warn("jwt secret not configured, tokens will not survive a restart")
	}

	// Redis 可选：缓存、分布式限流计数、跨实例状态广播
	var redisClient *redisstore.Client
	var redisCache *redisstore.Cache
	if cfg.Redis.Address != "" {
		redisClient, err = redisstore.New(&cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		defer redisClient.Close()
		redisCache = redisstore.NewCache(redisClient)
	}

	store, err := initializeStorage(cfg, redisCache, log)
	if err != nil {
		return err
	}
	defer store.Close()

	accountSigner, err := initializeSigner(cfg, log)
	if err != nil {
		return err
	}

	sender, err := mailer.NewSender(&cfg.Mail, log)
	if err != nil {
		return fmt.Errorf("failed to initialize mail sender: %w", err)
	}

	// 初始化监控系统
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	claimService := service.NewClaimService(store, accountSigner, metrics, log)
	authService, err := auth.NewService(cfg.Owner.Address, auth.NewJWTManager(&cfg.JWT, signingKey))
	if err != nil {
		return err
	}

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, claimService.GetClaimHistory, metrics, log)
	if redisCache != nil {
		claimService.SetNotifier(&publishNotifier{cache: redisCache, log: log})
	} else {
		claimService.SetNotifier(wsHub)
	}

	// 公开方法限流：有 Redis 时按实例共享计数，否则进程内令牌桶
	var claimLimiter middleware.Limiter
	var ipLimiter *middleware.IPRateLimiter
	if redisCache != nil {
		claimLimiter = middleware.NewCounterRateLimiter(redisCache, cfg.RateLimit.ClaimPerMinute, time.Minute, "rpc", log)
	} else {
		ipLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.ClaimPerMinute)
		claimLimiter = ipLimiter
	}
	wsLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.ClaimPerMinute)

	rpcServer := rpc.NewServer(claimLimiter, metrics, log)
	rpc.RegisterClaimMethods(rpcServer, claimService, authService)
	log.Info("json-rpc methods registered", zap.Strings("methods", rpcServer.Methods()))

	var cachePinger health.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}
	healthChecker := health.NewHealthChecker(store, cachePinger, log)

	// 初始化告警系统
	alertManager := monitoring.NewAlertManager(log)
	alertManager.AddReceiver(monitoring.NewLogAlertReceiver(log))
	alertManager.AddRule(monitoring.HighMemoryUsageRule(512.0)) // 512MB
	alertManager.AddRule(monitoring.DatabaseConnectionRule(store))
	alertManager.AddRule(monitoring.MailBacklogRule(store, 10*cfg.Mail.BatchLimit))

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		RPCServer:     rpcServer,
		TokenVerifier: authService,
		Health:        healthChecker,
		Metrics:       metrics,
		WebSocketHub:  wsHub,
		WSLimiter:     wsLimiter,
		Alerts:        alertManager,
		Logger:        log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	dispatcher := dispatch.New(store, sender, dispatch.Options{
		From:       cfg.Mail.VerifiedSender,
		ClaimURL:   cfg.Mail.ClaimURL,
		BatchLimit: cfg.Mail.BatchLimit,
		Interval:   cfg.Mail.Interval,
	}, metrics, log)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 邮件派发 goroutine
	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		log.Info("starting WebSocket hub")
		wsHub.Run(groupCtx)
		return nil
	})

	// 跨实例状态广播
	if redisCache != nil {
		group.Go(func() error {
			log.Info("subscribing claim status changes")
			err := redisCache.SubscribeStatusChanges(groupCtx, func(secret string) {
				wsHub.Refresh(groupCtx, secret)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("status subscription stopped", zap.Error(err))
			}
			return nil
		})
	}

	// 告警监控 goroutine
	group.Go(func() error {
		alertManager.StartMonitoring(groupCtx, time.Minute)
		return nil
	})

	// 定时清理闲置限流桶 goroutine
	for _, l := range []*middleware.IPRateLimiter{ipLimiter, wsLimiter} {
		if l == nil {
			continue
		}
		group.Go(func() error {
			l.RunCleanup(groupCtx, 5*time.Minute)
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	// 等待所有 goroutine 完成
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// initializeStorage 按配置选择存储：未配置数据库时使用内存存储，配置 Redis 时叠加缓存
func initializeStorage(cfg *config.Config, cache *redisstore.Cache, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == "" {
		log.Warn("using memory storage (development mode), records are lost on restart")
		return memory.NewStore(), nil
	}

	log.Info("initializing database storage",
		zap.String("database_type", cfg.Database.Type),
		zap.Bool("redis_cache", cache != nil),
	)

	db, err := sqlstore.NewStore(cfg.Database.Type, cfg.Database.DSN, sqlstore.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		AutoMigrate:     cfg.Log.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database storage: %w", err)
	}

	if cache == nil {
		// 单实例部署：进程内缓存，写操作同样会失效对应条目
		local, err := localcache.NewLocalCache(localcache.DefaultSize)
		if err != nil {
			return nil, err
		}
		return hybrid.NewStore(db, local, cfg.Redis.CacheTTL, log), nil
	}
	return hybrid.NewStore(db, cache, cfg.Redis.CacheTTL, log), nil
}

// initializeSigner 加载可领取账户私钥；开发模式下未配置时生成临时密钥
func initializeSigner(cfg *config.Config, log *zap.Logger) (signer.Signer, error) {
	s, err := signer.NewKeySigner(cfg.Signer.PrivateKey)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, signer.ErrMissingKey) || !cfg.Log.Development {
		return nil, err
	}

	s, err = signer.NewRandomSigner()
	if err != nil {
		return nil, err
	}
	addr, _ := s.Address(context.Background())
	log.Warn("signer private key not configured, using an ephemeral key (development only)",
		zap.String("address", addr),
	)
	return s, nil
}

// publishNotifier 通过 Redis 广播状态变更，由各实例的订阅者推送给本地 websocket 连接
type publishNotifier struct {
	cache *redisstore.Cache
	log   *zap.Logger
}

func (n *publishNotifier) NotifyStatus(secret string, _ domain.ClaimHistory) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.cache.PublishStatusChange(ctx, secret); err != nil {
		n.log.Warn("failed to publish claim status change", zap.Error(err))
	}
}
