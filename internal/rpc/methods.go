package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"sudtfaucet/backend/internal/auth"
	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/service"
)

// 方法名
const (
	MethodLogin                      = "login"
	MethodSendClaimableMails         = "send_claimable_mails"
	MethodListClaimHistory           = "list_claim_history"
	MethodGetClaimHistory            = "get_claim_history"
	MethodDisableClaimSecret         = "disable_claim_secret"
	MethodClaimSudt                  = "claim_sudt"
	MethodGetClaimableAccountAddress = "get_claimable_account_address"
	MethodListIssuedSudt             = "list_issued_sudt"
	MethodGetClaimableSudtBalance    = "get_claimable_sudt_balance"
)

// LoginParams login 参数
type LoginParams struct {
	Message string `json:"message"`
	Sig     string `json:"sig"`
}

// RCIdentityParams 发行方身份，flag 同时接受数字和数字字符串
type RCIdentityParams struct {
	PubkeyHash string    `json:"pubkeyHash"`
	Flag       FlexUint8 `json:"flag"`
}

// SendClaimableMailsParams send_claimable_mails 参数
type SendClaimableMailsParams struct {
	RCIdentity RCIdentityParams   `json:"rcIdentity"`
	Recipients []domain.Recipient `json:"recipients"`
}

// ListClaimHistoryParams list_claim_history 参数
type ListClaimHistoryParams struct {
	SudtID string `json:"sudtId"`
}

// GetClaimHistoryParams get_claim_history 参数
type GetClaimHistoryParams struct {
	Secret string `json:"secret"`
}

// DisableClaimSecretParams disable_claim_secret 参数
type DisableClaimSecretParams struct {
	ClaimSecret string `json:"claimSecret"`
}

// ClaimSudtParams claim_sudt 参数
type ClaimSudtParams struct {
	ClaimSecret string `json:"claimSecret"`
	Address     string `json:"address"`
}

// ListClaimHistoryResult list_claim_history 结果
type ListClaimHistoryResult struct {
	Histories []domain.ClaimHistory `json:"histories"`
}

// GetClaimHistoryResult get_claim_history 结果，记录不存在时 history 缺省
type GetClaimHistoryResult struct {
	History *domain.ClaimHistory `json:"history,omitempty"`
}

// FlexUint8 接受 1 或 "1"
type FlexUint8 uint8

// UnmarshalJSON 实现 json.Unmarshaler
func (f *FlexUint8) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(string(data), 0, 8)
	if err != nil {
		return fmt.Errorf("invalid flag %q: %w", data, err)
	}
	*f = FlexUint8(v)
	return nil
}

// RegisterClaimMethods 注册全部领取相关方法
func RegisterClaimMethods(s *Server, claims *service.ClaimService, authSvc *auth.Service) {
	s.Register(MethodLogin, func(_ context.Context, raw json.RawMessage) (any, error) {
		var p LoginParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return authSvc.Login(p.Message, p.Sig)
	}, RateLimited())

	s.Register(MethodSendClaimableMails, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p SendClaimableMailsParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		identity := domain.RCIdentity{PubkeyHash: p.RCIdentity.PubkeyHash, Flag: uint8(p.RCIdentity.Flag)}
		return nil, claims.SendClaimableMails(ctx, identity, p.Recipients)
	}, OwnerOnly())

	s.Register(MethodListClaimHistory, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p ListClaimHistoryParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		histories, err := claims.ListClaimHistory(ctx, p.SudtID)
		if err != nil {
			return nil, err
		}
		return ListClaimHistoryResult{Histories: histories}, nil
	}, OwnerOnly())

	s.Register(MethodGetClaimHistory, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p GetClaimHistoryParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		history, err := claims.GetClaimHistory(ctx, p.Secret)
		if err != nil {
			return nil, err
		}
		return GetClaimHistoryResult{History: history}, nil
	}, RateLimited())

	s.Register(MethodDisableClaimSecret, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p DisableClaimSecretParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, claims.DisableClaimSecret(ctx, p.ClaimSecret)
	}, OwnerOnly())

	s.Register(MethodClaimSudt, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p ClaimSudtParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, claims.ClaimSudt(ctx, p.ClaimSecret, p.Address)
	}, RateLimited())

	s.Register(MethodGetClaimableAccountAddress, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return claims.GetClaimableAccountAddress(ctx)
	}, OwnerOnly())

	s.Register(MethodListIssuedSudt, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, claims.ListIssuedSudt(ctx)
	}, OwnerOnly())

	s.Register(MethodGetClaimableSudtBalance, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return nil, claims.GetClaimableSudtBalance(ctx)
	}, OwnerOnly())
}

// decodeParams 解析命名参数；缺省参数视为空对象
func decodeParams(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] != '{' {
		return NewError(CodeInvalidParams, "params must be an object")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewError(CodeInvalidParams, "invalid params: "+err.Error())
	}
	return nil
}
