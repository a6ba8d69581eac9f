package jwt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken 无效的令牌
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken 令牌已过期
	ErrExpiredToken = errors.New("token expired")
	// ErrWeakSigningKey 签名密钥过短
	ErrWeakSigningKey = errors.New("signing key must be at least 32 bytes")
)

// MinKeyLength HS256 签名密钥的最小长度
const MinKeyLength = 32

// SigningKey HS256 签名密钥，由进程启动时构造并注入
type SigningKey []byte

// NewSigningKey 使用配置的密钥；为空时生成进程级随机密钥（重启后旧令牌全部失效）
func NewSigningKey(secret string) (SigningKey, error) {
	if secret != "" {
		if len(secret) < MinKeyLength {
			return nil, ErrWeakSigningKey
		}
		return SigningKey(secret), nil
	}

	key := make([]byte, MinKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return SigningKey(key), nil
}

// Claims JWT 自定义声明
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Manager JWT 管理器
type Manager struct {
	key    SigningKey
	issuer string
	expiry time.Duration
	now    func() time.Time
}

// NewManager 创建 JWT 管理器
func NewManager(key SigningKey, issuer string, expiry time.Duration) *Manager {
	return &Manager{
		key:    key,
		issuer: issuer,
		expiry: expiry,
		now:    time.Now,
	}
}

// GenerateToken 为地址签发令牌，返回令牌和过期时间
func (m *Manager) GenerateToken(address string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	claims := Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   address,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken 验证令牌并返回声明
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.key), nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
