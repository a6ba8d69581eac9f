package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudtfaucet/backend/internal/domain"
)

func startHub(t *testing.T, loader HistoryLoader) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub([]string{"*"}, loader, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/claims", HandleWebSocket(hub))
	srv := httptest.NewServer(router)

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/claims"
}

func readMessage(t *testing.T, conn *gorilla.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PushesInitialAndChangedStatus(t *testing.T) {
	loader := func(_ context.Context, secret string) (*domain.ClaimHistory, error) {
		return &domain.ClaimHistory{
			ClaimSecret: secret,
			ClaimStatus: domain.ClaimStatusView{Status: domain.PublicUnclaimed},
		}, nil
	}
	hub, url := startHub(t, loader)

	conn, _, err := gorilla.DefaultDialer.Dial(url+"?secret=abc", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeClaimStatus, msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, domain.PublicUnclaimed, msg.Data.ClaimStatus.Status)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.NotifyStatus("abc", domain.ClaimHistory{
		ClaimSecret: "abc",
		ClaimStatus: domain.ClaimStatusView{Status: domain.PublicClaimed, Address: "ckt1"},
	})
	msg = readMessage(t, conn)
	assert.Equal(t, "abc", msg.Secret)
	assert.Equal(t, domain.PublicClaimed, msg.Data.ClaimStatus.Status)
}

func TestHub_OnlySubscribersReceive(t *testing.T) {
	hub, url := startHub(t, nil)

	conn, _, err := gorilla.DefaultDialer.Dial(url+"?secret=mine", nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.NotifyStatus("other", domain.ClaimHistory{ClaimSecret: "other"})
	hub.NotifyStatus("mine", domain.ClaimHistory{ClaimSecret: "mine"})

	// 只会收到自己的密钥
	msg := readMessage(t, conn)
	assert.Equal(t, "mine", msg.Secret)
}

func TestHub_Refresh(t *testing.T) {
	calls := make(chan string, 4)
	loader := func(_ context.Context, secret string) (*domain.ClaimHistory, error) {
		calls <- secret
		return &domain.ClaimHistory{ClaimSecret: secret}, nil
	}
	hub, _ := startHub(t, loader)

	// 没有订阅者时不读取存储
	hub.Refresh(context.Background(), "nobody")
	select {
	case s := <-calls:
		t.Fatalf("unexpected load for %s", s)
	default:
	}
}

func TestHandleWebSocket_RequiresSecret(t *testing.T) {
	_, url := startHub(t, nil)

	_, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
