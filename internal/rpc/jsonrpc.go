// Package rpc 实现 JSON-RPC 2.0 接口，把方法调用分派到领取业务服务。
package rpc

import (
	"encoding/json"
	"errors"

	"sudtfaucet/backend/internal/auth"
	"sudtfaucet/backend/internal/domain"
)

// Version JSON-RPC 协议版本
const Version = "2.0"

// 错误码
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeNotImplemented = -32000
	CodeStateError     = -32001
	CodeRateLimited    = -32002
	CodeUnauthorized   = -32003
	CodeNotFound       = -32004
)

// Request 请求信封
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification 没有 id 的请求不需要响应
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response 响应信封
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error JSON-RPC 错误对象
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError 创建错误对象
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

var nullID = json.RawMessage("null")

var validationErrors = []error{
	domain.ErrEmptyRecipients,
	domain.ErrMessageTooLong,
	domain.ErrAddressTooLong,
	domain.ErrMailTooLong,
	domain.ErrInvalidMail,
	domain.ErrInvalidAmount,
	domain.ErrInvalidSudtID,
	domain.ErrInvalidIdentity,
	domain.ErrEmptySecret,
	domain.ErrEmptyAddress,
	domain.ErrInvalidExpiredAt,
}

var stateErrors = []error{
	domain.ErrClaimInvalid,
	domain.ErrAlreadyDisabled,
	domain.ErrDisableAfterClaim,
	domain.ErrAlreadyClaimed,
	domain.ErrInvalidTransition,
}

// errorFor 把业务错误映射为 JSON-RPC 错误，第二个返回值表示是否为预期内错误
func errorFor(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return NewError(CodeInvalidParams, target.Error()), true
		}
	}
	for _, target := range stateErrors {
		if errors.Is(err, target) {
			return NewError(CodeStateError, target.Error()), true
		}
	}
	switch {
	case errors.Is(err, domain.ErrSecretNotFound), errors.Is(err, domain.ErrRecordNotFound):
		return NewError(CodeNotFound, domain.ErrSecretNotFound.Error()), true
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, auth.ErrInvalidSignature):
		return NewError(CodeUnauthorized, domain.ErrUnauthorized.Error()), true
	case errors.Is(err, domain.ErrNotImplemented):
		return NewError(CodeNotImplemented, domain.ErrNotImplemented.Error()), true
	}
	return NewError(CodeInternalError, "internal error"), false
}
