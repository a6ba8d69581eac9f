package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sudtfaucet/backend/internal/auth"
)

// TokenVerifier 校验 Bearer 令牌并返回声明
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	verifier TokenVerifier
	log      *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(verifier TokenVerifier, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		verifier: verifier,
		log:      log,
	}
}

// RequireAuth 要求发行方令牌
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		claims, err := ja.verifier.Verify(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.String("error", err.Error()),
				zap.String("ip", c.ClientIP()),
			)
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(ContextOwnerAddress, claims.Address)
		c.Set(ContextAuthenticated, true)
		c.Next()
	}
}

// OptionalAuth 可选的JWT认证，由后续处理器按方法决定是否需要登录
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		claims, err := ja.verifier.Verify(token)
		if err != nil {
			ja.log.Debug("ignoring invalid token", zap.String("ip", c.ClientIP()))
			c.Next()
			return
		}

		c.Set(ContextOwnerAddress, claims.Address)
		c.Set(ContextAuthenticated, true)
		c.Next()
	}
}

// ExtractBearerToken 从 Authorization 头提取令牌
//
// 同时接受 "Bearer <token>" 和裸令牌两种写法。
func ExtractBearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return ""
}
