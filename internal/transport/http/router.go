package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sudtfaucet/backend/internal/config"
	"sudtfaucet/backend/internal/health"
	"sudtfaucet/backend/internal/middleware"
	"sudtfaucet/backend/internal/monitoring"
	"sudtfaucet/backend/internal/rpc"
	"sudtfaucet/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	RPCServer     *rpc.Server
	TokenVerifier middleware.TokenVerifier
	Health        *health.HealthChecker
	Metrics       *monitoring.Metrics
	WebSocketHub  *websocket.Hub    // 为空时不注册 websocket 路由
	WSLimiter     middleware.Limiter // websocket 握手限流，可以为空
	Alerts        AlertLister        // 为空时不注册告警查询
	Logger        *zap.Logger
}

// AlertLister 未恢复告警的查询，由 monitoring.AlertManager 实现
type AlertLister interface {
	ActiveAlerts() []monitoring.Alert
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true

	var monitor *middleware.MonitoringMiddleware
	if deps.Metrics != nil {
		monitor = middleware.NewMonitoringMiddleware(deps.Metrics, log)
		router.Use(monitor.PanicRecovery())
		router.Use(monitor.HTTPMetrics())
	} else {
		router.Use(middleware.RecoveryHandler(log))
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.RPCBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, MsgNotFound)
	})
	router.NoMethod(func(c *gin.Context) {
		Error(c, http.StatusMethodNotAllowed, MsgNotAllowed)
	})

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			Success(c, gin.H{"status": "ok"})
			return
		}
		results := deps.Health.CheckHealth()
		if results["database"] != "OK" {
			ErrorWithData(c, http.StatusServiceUnavailable, MsgUnhealthy, results)
			return
		}
		Success(c, results)
	})
	if deps.Health != nil {
		router.GET("/health/live", gin.WrapF(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyHandler()))
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// JSON-RPC：发行方方法按令牌鉴权，公开方法在分派器内限流
	jwtAuth := middleware.NewJWTAuth(deps.TokenVerifier, log)
	router.POST("/rpc", jwtAuth.OptionalAuth(), deps.RPCServer.Handle)

	// 发行方查看当前告警
	if deps.Alerts != nil {
		router.GET("/v1/alerts", jwtAuth.RequireAuth(), func(c *gin.Context) {
			Success(c, gin.H{"alerts": deps.Alerts.ActiveAlerts()})
		})
	}

	if deps.WebSocketHub != nil {
		wsHandlers := []gin.HandlerFunc{}
		if deps.WSLimiter != nil {
			wsHandlers = append(wsHandlers, middleware.RateLimitByIP(deps.WSLimiter, "websocket", monitor))
		}
		wsHandlers = append(wsHandlers, websocket.HandleWebSocket(deps.WebSocketHub))
		router.GET("/ws/claims", wsHandlers...)
	}

	return router
}
