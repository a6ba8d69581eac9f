package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"sudtfaucet/backend/internal/domain"
)

var (
	// ErrInvalidSignature 签名格式错误或无法恢复公钥
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInvalidOwner 发行方地址配置错误
	ErrInvalidOwner = errors.New("invalid owner address")
)

// Service 认证服务，只有配置的发行方地址可以登录
type Service struct {
	owner  common.Address
	tokens *JWTManager
}

// NewService 创建认证服务
func NewService(ownerAddress string, tokens *JWTManager) (*Service, error) {
	if !common.IsHexAddress(ownerAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOwner, ownerAddress)
	}
	return &Service{
		owner:  common.HexToAddress(ownerAddress),
		tokens: tokens,
	}, nil
}

// Owner 返回发行方地址（EIP-55 格式）
func (s *Service) Owner() string {
	return s.owner.Hex()
}

// Login 校验个人签名，签名者必须是发行方地址
func (s *Service) Login(message, signature string) (*TokenResponse, error) {
	signer, err := RecoverAddress(message, signature)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if signer != s.owner {
		return nil, domain.ErrUnauthorized
	}
	return s.tokens.GenerateToken(s.owner.Hex())
}

// Verify 校验 Bearer 令牌属于发行方
func (s *Service) Verify(token string) (*Claims, error) {
	claims, err := s.tokens.ValidateToken(token)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !common.IsHexAddress(claims.Address) || common.HexToAddress(claims.Address) != s.owner {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// RecoverAddress 从 EIP-191 个人消息签名中恢复签名地址
//
// 签名为 65 字节 r||s||v 的十六进制，v 可以是 0/1 或 27/28。
func RecoverAddress(message, signature string) (common.Address, error) {
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignMessage 用私钥对消息做个人签名，返回带 0x 的十六进制（v 为 27/28）
func SignMessage(message string, keyHex string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
