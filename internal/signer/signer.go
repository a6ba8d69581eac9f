// Package signer 提供可领取账户的地址。
//
// 交易构造与签名由链上组件负责，这里只持有密钥并导出地址。
package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrMissingKey 未配置私钥
var ErrMissingKey = errors.New("signer private key is required")

// Signer 可领取账户
type Signer interface {
	Address(ctx context.Context) (string, error)
}

// KeySigner 基于 secp256k1 私钥的签名者
type KeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeySigner 从十六进制私钥创建签名者，允许 0x 前缀
func NewKeySigner(keyHex string) (*KeySigner, error) {
	keyHex = strings.TrimSpace(keyHex)
	if keyHex == "" {
		return nil, ErrMissingKey
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signer private key: %w", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// NewRandomSigner 生成一个临时密钥，仅用于开发模式
func NewRandomSigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signer key: %w", err)
	}
	return &KeySigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address 返回 EIP-55 格式的地址
func (s *KeySigner) Address(_ context.Context) (string, error) {
	return s.address.Hex(), nil
}
