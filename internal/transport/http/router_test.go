package httptransport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudtfaucet/backend/internal/auth"
	"sudtfaucet/backend/internal/auth/jwt"
	"sudtfaucet/backend/internal/config"
	"sudtfaucet/backend/internal/health"
	"sudtfaucet/backend/internal/middleware"
	"sudtfaucet/backend/internal/monitoring"
	"sudtfaucet/backend/internal/rpc"
	"sudtfaucet/backend/internal/service"
	"sudtfaucet/backend/internal/storage/memory"
)

type fixedSigner struct{}

func (fixedSigner) Address(context.Context) (string, error) { return "ckt1signer", nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	router, _ := newOwnerRouter(t, nil)
	return router
}

// newOwnerRouter 返回路由和发行方登录得到的令牌
func newOwnerRouter(t *testing.T, alerts AlertLister) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signingKey, err := jwt.NewSigningKey("")
	require.NoError(t, err)
	authSvc, err := auth.NewService(crypto.PubkeyToAddress(key.PublicKey).Hex(),
		auth.NewJWTManager(&config.JWTConfig{Issuer: "test", Expiry: time.Hour}, signingKey))
	require.NoError(t, err)

	store := memory.NewStore()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	claims := service.NewClaimService(store, fixedSigner{}, metrics, nil)

	server := rpc.NewServer(middleware.NewIPRateLimiter(100), metrics, nil)
	rpc.RegisterClaimMethods(server, claims, authSvc)

	message := "login sudt faucet"
	sig, err := auth.SignMessage(message, hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)
	token, err := authSvc.Login(message, sig)
	require.NoError(t, err)

	router := NewRouter(RouterDependencies{
		Config:        &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		RPCServer:     server,
		TokenVerifier: authSvc,
		Health:        health.NewHealthChecker(store, nil, nil),
		Metrics:       metrics,
		Alerts:        alerts,
	})
	return router, token.JWT
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_RPC(t *testing.T) {
	router := newTestRouter(t)

	body := `{"jsonrpc":"2.0","id":"a","method":"get_claim_history","params":{"secret":"unknown"}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
	assert.Equal(t, `"a"`, string(resp.ID))
}

func TestRouter_BodyLimit(t *testing.T) {
	router := newTestRouter(t)

	big := `{"jsonrpc":"2.0","id":1,"method":"login","params":{"message":"` + strings.Repeat("x", middleware.RPCBodyLimit) + `"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRouter_MetricsAndNotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sudtfaucet_http_requests_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouter_Alerts(t *testing.T) {
	alerts := monitoring.NewAlertManager(nil)
	alerts.AddRule(monitoring.AlertRule{
		ID:        "always",
		Name:      "Always",
		Condition: func(context.Context) (string, bool) { return "firing", true },
		Level:     monitoring.AlertLevelWarning,
	})
	alerts.CheckRules(context.Background())

	router, token := newOwnerRouter(t, alerts)

	t.Run("未登录拒绝", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("无效令牌拒绝", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
		req.Header.Set("Authorization", "Bearer invalid")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("发行方查看告警", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/alerts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"ruleId":"always"`)
	})

	t.Run("未配置告警时不注册", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newTestRouter(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
