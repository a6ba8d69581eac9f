package auth

import (
	"sudtfaucet/backend/internal/auth/jwt"
	"sudtfaucet/backend/internal/config"
)

// JWTManager JWT管理器包装
type JWTManager struct {
	manager *jwt.Manager
}

// NewJWTManager 创建JWT管理器，签名密钥由调用方注入
func NewJWTManager(cfg *config.JWTConfig, key jwt.SigningKey) *JWTManager {
	return &JWTManager{manager: jwt.NewManager(key, cfg.Issuer, cfg.Expiry)}
}

// TokenResponse 登录响应
type TokenResponse struct {
	JWT       string `json:"jwt"`
	TokenType string `json:"tokenType"`
	ExpiresAt int64  `json:"expiresAt"` // 毫秒时间戳
}

// Claims JWT声明
type Claims struct {
	Address string `json:"address"`
}

// GenerateToken 为地址签发令牌
func (j *JWTManager) GenerateToken(address string) (*TokenResponse, error) {
	token, expiresAt, err := j.manager.GenerateToken(address)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		JWT:       token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt.UnixMilli(),
	}, nil
}

// ValidateToken 验证令牌
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := j.manager.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	return &Claims{Address: claims.Address}, nil
}
