package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudtfaucet/backend/internal/auth"
	"sudtfaucet/backend/internal/auth/jwt"
	"sudtfaucet/backend/internal/config"
	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/middleware"
	"sudtfaucet/backend/internal/monitoring"
	"sudtfaucet/backend/internal/service"
	"sudtfaucet/backend/internal/storage/memory"
)

type staticSigner struct{}

func (staticSigner) Address(context.Context) (string, error) { return "ckt1qclaimable", nil }

type denyAll struct{}

func (denyAll) Allow(context.Context, string) bool { return false }

type testEnv struct {
	router  *gin.Engine
	store   *memory.Store
	metrics *monitoring.Metrics
	ownerSK string
}

func newTestEnv(t *testing.T, limiter middleware.Limiter) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey).Hex()

	signingKey, err := jwt.NewSigningKey("")
	require.NoError(t, err)
	authSvc, err := auth.NewService(owner, auth.NewJWTManager(&config.JWTConfig{Issuer: "test", Expiry: time.Hour}, signingKey))
	require.NoError(t, err)

	store := memory.NewStore()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	claims := service.NewClaimService(store, staticSigner{}, metrics, nil)

	server := NewServer(limiter, metrics, nil)
	RegisterClaimMethods(server, claims, authSvc)

	router := gin.New()
	router.POST("/rpc", middleware.NewJWTAuth(authSvc, nil).OptionalAuth(), server.Handle)

	return &testEnv{
		router:  router,
		store:   store,
		metrics: metrics,
		ownerSK: hex.EncodeToString(crypto.FromECDSA(key)),
	}
}

func (e *testEnv) do(t *testing.T, body, token string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var resp Response
	if rec.Code == http.StatusOK && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (e *testEnv) call(t *testing.T, method string, params any, token string) Response {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)
	_, resp := e.do(t, string(payload), token)
	return resp
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	sig, err := auth.SignMessage("sudt faucet login", e.ownerSK)
	require.NoError(t, err)

	resp := e.call(t, MethodLogin, LoginParams{Message: "sudt faucet login", Sig: sig}, "")
	require.Nil(t, resp.Error)

	var token auth.TokenResponse
	require.NoError(t, json.Unmarshal(resp.Result, &token))
	require.NotEmpty(t, token.JWT)
	return token.JWT
}

func sendParams(messages ...string) map[string]any {
	recipients := make([]map[string]any, 0, len(messages))
	for i, msg := range messages {
		recipients = append(recipients, map[string]any{
			"mail":              fmt.Sprintf("user%d@example.com", i),
			"sudtId":            "sudt-a",
			"amount":            "100",
			"expiredAt":         1700000000000,
			"additionalMessage": msg,
		})
	}
	return map[string]any{
		"rcIdentity": map[string]any{"pubkeyHash": "0xabcdef", "flag": "0"},
		"recipients": recipients,
	}
}

func TestServer_Login(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("发行方签名登录成功", func(t *testing.T) {
		assert.NotEmpty(t, env.login(t))
	})

	t.Run("其他地址签名被拒绝", func(t *testing.T) {
		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		sig, err := auth.SignMessage("hi", hex.EncodeToString(crypto.FromECDSA(other)))
		require.NoError(t, err)

		resp := env.call(t, MethodLogin, LoginParams{Message: "hi", Sig: sig}, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeUnauthorized, resp.Error.Code)
		assert.Equal(t, "Only the owner is allowed to access", resp.Error.Message)
	})

	t.Run("签名格式错误", func(t *testing.T) {
		resp := env.call(t, MethodLogin, LoginParams{Message: "hi", Sig: "0x1234"}, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeUnauthorized, resp.Error.Code)
	})
}

func TestServer_OwnerMethodsRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, method := range []string{
		MethodSendClaimableMails,
		MethodListClaimHistory,
		MethodDisableClaimSecret,
		MethodGetClaimableAccountAddress,
		MethodListIssuedSudt,
		MethodGetClaimableSudtBalance,
	} {
		t.Run(method, func(t *testing.T) {
			resp := env.call(t, method, map[string]any{}, "")
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeUnauthorized, resp.Error.Code)

			resp = env.call(t, method, map[string]any{}, "not-a-jwt")
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeUnauthorized, resp.Error.Code)
		})
	}
}

func TestServer_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	token := env.login(t)

	resp := env.call(t, MethodSendClaimableMails, sendParams("hello", "world"), token)
	require.Nil(t, resp.Error)
	assert.Equal(t, "null", string(resp.Result))

	resp = env.call(t, MethodListClaimHistory, ListClaimHistoryParams{SudtID: "sudt-a"}, token)
	require.Nil(t, resp.Error)
	var list ListClaimHistoryResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Histories, 2)
	for _, h := range list.Histories {
		assert.Equal(t, domain.PublicUnclaimed, h.ClaimStatus.Status)
	}
	secret := list.Histories[0].ClaimSecret

	// 邮件发出之前不能领取
	resp = env.call(t, MethodClaimSudt, ClaimSudtParams{ClaimSecret: secret, Address: "ckt1qyq"}, "")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeStateError, resp.Error.Code)
	assert.Equal(t, "It seems you have already claimed", resp.Error.Message)

	_, err := env.store.TransitionStatusBySecrets(ctx, []string{secret}, domain.StatusWaitForSendMail, domain.StatusWaitForClaim)
	require.NoError(t, err)

	resp = env.call(t, MethodClaimSudt, ClaimSudtParams{ClaimSecret: secret, Address: "ckt1qyq"}, "")
	require.Nil(t, resp.Error)

	resp = env.call(t, MethodGetClaimHistory, GetClaimHistoryParams{Secret: secret}, "")
	require.Nil(t, resp.Error)
	var got GetClaimHistoryResult
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	require.NotNil(t, got.History)
	assert.Equal(t, domain.PublicClaimed, got.History.ClaimStatus.Status)
	assert.Equal(t, "ckt1qyq", got.History.ClaimStatus.Address)
	assert.Equal(t, "undo", got.History.ClaimStatus.TxHash)

	resp = env.call(t, MethodDisableClaimSecret, DisableClaimSecretParams{ClaimSecret: secret}, token)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeStateError, resp.Error.Code)
	assert.Equal(t, "error: can not disable secret after user claimed", resp.Error.Message)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RPCCallsTotal.WithLabelValues(MethodClaimSudt, "0")))
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.login(t)

	t.Run("空收件人", func(t *testing.T) {
		resp := env.call(t, MethodSendClaimableMails, sendParams(), token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
		assert.Equal(t, "call send_claimable_mails with empty payload", resp.Error.Message)
	})

	t.Run("附言过长", func(t *testing.T) {
		resp := env.call(t, MethodSendClaimableMails, sendParams("ok", strings.Repeat("x", 2048)), token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	})

	t.Run("禁用未知密钥", func(t *testing.T) {
		resp := env.call(t, MethodDisableClaimSecret, DisableClaimSecretParams{ClaimSecret: "missing"}, token)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeNotFound, resp.Error.Code)
		assert.Equal(t, "error: secret not found", resp.Error.Message)
	})

	t.Run("领取未知密钥", func(t *testing.T) {
		resp := env.call(t, MethodClaimSudt, ClaimSudtParams{ClaimSecret: "missing", Address: "ckt1"}, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeStateError, resp.Error.Code)
		assert.Equal(t, "The claim is invalid. Please make sure you have a valid claim invitation", resp.Error.Message)
	})

	t.Run("查询未知密钥返回空", func(t *testing.T) {
		resp := env.call(t, MethodGetClaimHistory, GetClaimHistoryParams{Secret: "missing"}, "")
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `{}`, string(resp.Result))
	})

	t.Run("未实现的方法", func(t *testing.T) {
		for _, method := range []string{MethodListIssuedSudt, MethodGetClaimableSudtBalance} {
			resp := env.call(t, method, nil, token)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeNotImplemented, resp.Error.Code)
		}
	})

	t.Run("可领取账户地址", func(t *testing.T) {
		resp := env.call(t, MethodGetClaimableAccountAddress, nil, token)
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `"ckt1qclaimable"`, string(resp.Result))
	})

	t.Run("参数不是对象", func(t *testing.T) {
		resp := env.call(t, MethodClaimSudt, []string{"a", "b"}, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	})

	t.Run("未知方法", func(t *testing.T) {
		resp := env.call(t, "drop_tables", nil, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	})
}

func TestServer_Envelope(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("非法 JSON", func(t *testing.T) {
		rec, resp := env.do(t, `{"jsonrpc":`, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeParseError, resp.Error.Code)
	})

	t.Run("版本错误", func(t *testing.T) {
		_, resp := env.do(t, `{"jsonrpc":"1.0","id":7,"method":"login"}`, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
		assert.Equal(t, "7", string(resp.ID))
	})

	t.Run("通知没有响应体", func(t *testing.T) {
		rec, _ := env.do(t, `{"jsonrpc":"2.0","method":"get_claim_history","params":{"secret":"x"}}`, "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("批量请求", func(t *testing.T) {
		rec, _ := env.do(t, `[
			{"jsonrpc":"2.0","id":1,"method":"get_claim_history","params":{"secret":"x"}},
			{"jsonrpc":"2.0","id":2,"method":"nope"},
			{"jsonrpc":"2.0","method":"get_claim_history","params":{"secret":"y"}}
		]`, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var batch []Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
		require.Len(t, batch, 2)
		assert.Nil(t, batch[0].Error)
		require.NotNil(t, batch[1].Error)
		assert.Equal(t, CodeMethodNotFound, batch[1].Error.Code)
	})

	t.Run("空批量", func(t *testing.T) {
		_, resp := env.do(t, `[]`, "")
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
	})
}

func TestServer_RateLimitedMethods(t *testing.T) {
	env := newTestEnv(t, denyAll{})

	resp := env.call(t, MethodClaimSudt, ClaimSudtParams{ClaimSecret: "x", Address: "y"}, "")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeRateLimited, resp.Error.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RateLimitBlocks.WithLabelValues("rpc")))

	// 发行方方法只做身份校验，不计入限流
	resp = env.call(t, MethodListClaimHistory, ListClaimHistoryParams{SudtID: "sudt-a"}, "")
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RateLimitBlocks.WithLabelValues("rpc")))
}

func TestFlexUint8(t *testing.T) {
	var p RCIdentityParams
	require.NoError(t, json.Unmarshal([]byte(`{"pubkeyHash":"0x01","flag":"1"}`), &p))
	assert.Equal(t, FlexUint8(1), p.Flag)

	require.NoError(t, json.Unmarshal([]byte(`{"flag":2}`), &p))
	assert.Equal(t, FlexUint8(2), p.Flag)

	assert.Error(t, json.Unmarshal([]byte(`{"flag":"256"}`), &p))
}
