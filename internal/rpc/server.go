package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/middleware"
	"sudtfaucet/backend/internal/monitoring"
)

// Handler 方法实现，params 为原始 JSON 参数
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

type method struct {
	handler   Handler
	ownerOnly bool
	limited   bool
}

// MethodOption 方法注册选项
type MethodOption func(*method)

// OwnerOnly 只允许发行方调用
func OwnerOnly() MethodOption {
	return func(m *method) { m.ownerOnly = true }
}

// RateLimited 按客户端 IP 限流
func RateLimited() MethodOption {
	return func(m *method) { m.limited = true }
}

// Caller 调用方信息
type Caller struct {
	Authenticated bool
	IP            string
}

// Server JSON-RPC 分派器
type Server struct {
	methods map[string]method
	limiter middleware.Limiter
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewServer 创建分派器，limiter 和 metrics 可以为空
func NewServer(limiter middleware.Limiter, metrics *monitoring.Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		methods: make(map[string]method),
		limiter: limiter,
		metrics: metrics,
		log:     log.With(zap.String("component", "rpc")),
	}
}

// Register 注册方法，重复注册会覆盖
func (s *Server) Register(name string, handler Handler, opts ...MethodOption) {
	m := method{handler: handler}
	for _, opt := range opts {
		opt(&m)
	}
	s.methods[name] = m
}

// Methods 返回已注册的方法名
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}

// Handle gin 处理器：POST /rpc
func (s *Server) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse(nullID, NewError(CodeInvalidRequest, "request body too large")))
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse(nullID, NewError(CodeParseError, "failed to read request body")))
		return
	}

	caller := Caller{
		Authenticated: c.GetBool(middleware.ContextAuthenticated),
		IP:            c.ClientIP(),
	}

	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(body, &batch); err != nil {
			c.JSON(http.StatusOK, errorResponse(nullID, NewError(CodeParseError, "parse error")))
			return
		}
		if len(batch) == 0 {
			c.JSON(http.StatusOK, errorResponse(nullID, NewError(CodeInvalidRequest, "empty batch")))
			return
		}
		responses := make([]*Response, 0, len(batch))
		for _, raw := range batch {
			if resp := s.process(c.Request.Context(), raw, caller, c); resp != nil {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, responses)
		return
	}

	if !json.Valid(body) {
		c.JSON(http.StatusOK, errorResponse(nullID, NewError(CodeParseError, "parse error")))
		return
	}
	resp := s.process(c.Request.Context(), body, caller, c)
	if resp == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Call 直接调用一个方法，供 Handle 和测试使用
func (s *Server) Call(ctx context.Context, name string, params json.RawMessage, caller Caller) (any, *Error) {
	start := time.Now()
	result, rpcErr := s.call(ctx, name, params, caller)

	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	if s.metrics != nil {
		s.metrics.RecordRPCCall(name, strconv.Itoa(code), time.Since(start))
	}
	return result, rpcErr
}

func (s *Server) call(ctx context.Context, name string, params json.RawMessage, caller Caller) (any, *Error) {
	m, ok := s.methods[name]
	if !ok {
		return nil, NewError(CodeMethodNotFound, "method not found: "+name)
	}
	if m.ownerOnly && !caller.Authenticated {
		return nil, NewError(CodeUnauthorized, domain.ErrUnauthorized.Error())
	}
	if m.limited && s.limiter != nil && !s.limiter.Allow(ctx, caller.IP) {
		if s.metrics != nil {
			s.metrics.RecordRateLimitBlock("rpc")
		}
		return nil, NewError(CodeRateLimited, "too many requests")
	}

	result, err := m.handler(ctx, params)
	if err != nil {
		rpcErr, expected := errorFor(err)
		if !expected {
			s.log.Error("rpc method failed", zap.String("method", name), zap.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("rpc", name)
			}
		}
		return nil, rpcErr
	}
	return result, nil
}

func (s *Server) process(ctx context.Context, raw json.RawMessage, caller Caller, c *gin.Context) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errorResponse(nullID, NewError(CodeInvalidRequest, "invalid request"))
	}
	if req.JSONRPC != Version || req.Method == "" {
		id := req.ID
		if len(id) == 0 {
			id = nullID
		}
		return errorResponse(id, NewError(CodeInvalidRequest, "invalid request"))
	}
	if c != nil {
		c.Set("rpcMethod", req.Method)
	}

	result, rpcErr := s.Call(ctx, req.Method, req.Params, caller)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		s.log.Error("failed to encode rpc result", zap.String("method", req.Method), zap.Error(err))
		return errorResponse(req.ID, NewError(CodeInternalError, "internal error"))
	}
	return &Response{JSONRPC: Version, ID: req.ID, Result: encoded}
}

func errorResponse(id json.RawMessage, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}
