// Package client 提供 JSON-RPC 客户端以及发行方、领取方两个前端流程的 Go 实现。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"sudtfaucet/backend/internal/auth"
	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/rpc"
)

// ErrUnexpectedStatus 服务端返回非 200 状态码
var ErrUnexpectedStatus = errors.New("unexpected http status")

// Client JSON-RPC 客户端
type Client struct {
	endpoint   string
	httpClient *http.Client
	nextID     atomic.Int64

	mu    sync.RWMutex
	token string
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 使用自定义 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken 预置登录令牌
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New 创建客户端，endpoint 形如 http://127.0.0.1:8080/rpc
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken 设置登录令牌
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token 当前登录令牌
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Call 调用一个方法并把结果解码到 result（可以为空）
//
// 服务端返回的错误以 *rpc.Error 形式返回。
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := c.nextID.Add(1)
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	body, err := json.Marshal(rpc.Request{
		JSONRPC: rpc.Version,
		ID:      json.RawMessage(strconv.FormatInt(id, 10)),
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("rpc %s: failed to read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: %w: %d", method, ErrUnexpectedStatus, resp.StatusCode)
	}

	var envelope rpc.Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("rpc %s: invalid response: %w", method, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result == nil || len(envelope.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("rpc %s: failed to decode result: %w", method, err)
	}
	return nil
}

// Login 登录并保存令牌
func (c *Client) Login(ctx context.Context, message, sig string) (*auth.TokenResponse, error) {
	var token auth.TokenResponse
	if err := c.Call(ctx, rpc.MethodLogin, rpc.LoginParams{Message: message, Sig: sig}, &token); err != nil {
		return nil, err
	}
	c.SetToken(token.JWT)
	return &token, nil
}

// SendClaimableMails 批量创建领取邀请
func (c *Client) SendClaimableMails(ctx context.Context, identity domain.RCIdentity, recipients []domain.Recipient) error {
	params := rpc.SendClaimableMailsParams{
		RCIdentity: rpc.RCIdentityParams{PubkeyHash: identity.PubkeyHash, Flag: rpc.FlexUint8(identity.Flag)},
		Recipients: recipients,
	}
	return c.Call(ctx, rpc.MethodSendClaimableMails, params, nil)
}

// ListClaimHistory 列出某个代币的领取记录
func (c *Client) ListClaimHistory(ctx context.Context, sudtID string) ([]domain.ClaimHistory, error) {
	var result rpc.ListClaimHistoryResult
	if err := c.Call(ctx, rpc.MethodListClaimHistory, rpc.ListClaimHistoryParams{SudtID: sudtID}, &result); err != nil {
		return nil, err
	}
	return result.Histories, nil
}

// GetClaimHistory 按密钥查询，不存在时返回 nil
func (c *Client) GetClaimHistory(ctx context.Context, secret string) (*domain.ClaimHistory, error) {
	var result rpc.GetClaimHistoryResult
	if err := c.Call(ctx, rpc.MethodGetClaimHistory, rpc.GetClaimHistoryParams{Secret: secret}, &result); err != nil {
		return nil, err
	}
	return result.History, nil
}

// DisableClaimSecret 禁用领取密钥
func (c *Client) DisableClaimSecret(ctx context.Context, secret string) error {
	return c.Call(ctx, rpc.MethodDisableClaimSecret, rpc.DisableClaimSecretParams{ClaimSecret: secret}, nil)
}

// ClaimSudt 提交领取地址
func (c *Client) ClaimSudt(ctx context.Context, secret, address string) error {
	return c.Call(ctx, rpc.MethodClaimSudt, rpc.ClaimSudtParams{ClaimSecret: secret, Address: address}, nil)
}

// GetClaimableAccountAddress 发放账户地址
func (c *Client) GetClaimableAccountAddress(ctx context.Context) (string, error) {
	var addr string
	if err := c.Call(ctx, rpc.MethodGetClaimableAccountAddress, nil, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

// ListIssuedSudt 服务端尚未实现
func (c *Client) ListIssuedSudt(ctx context.Context) error {
	return c.Call(ctx, rpc.MethodListIssuedSudt, nil, nil)
}

// GetClaimableSudtBalance 服务端尚未实现
func (c *Client) GetClaimableSudtBalance(ctx context.Context) error {
	return c.Call(ctx, rpc.MethodGetClaimableSudtBalance, nil, nil)
}
