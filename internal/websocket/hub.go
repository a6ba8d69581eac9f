package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/monitoring"
)

// HistoryLoader 按密钥读取最新的领取投影，不存在时返回 nil
type HistoryLoader func(ctx context.Context, secret string) (*domain.ClaimHistory, error)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeClaimStatus MessageType = "claim_status"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeError       MessageType = "error"
)

// PingInterval 应用层心跳间隔
const PingInterval = 30 * time.Second

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType          `json:"type"`
	Secret    string               `json:"secret,omitempty"`
	Data      *domain.ClaimHistory `json:"data,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Client 代表一个WebSocket客户端连接，只关注一个领取密钥
type Client struct {
	ID     string
	Secret string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	log    *zap.Logger
}

// Hub 管理所有WebSocket连接
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	secrets        map[string]map[string]*Client // secret -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	done           chan struct{}
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	loader         HistoryLoader
	metrics        *monitoring.Metrics
	pingInterval   time.Duration
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	Secret  string
	Message *Message
}

// NewHub 创建WebSocket Hub
//
// loader 用于连接建立时推送当前状态以及跨实例刷新，可以为空。
func NewHub(allowedOrigins []string, loader HistoryLoader, metrics *monitoring.Metrics, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		secrets:        make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		done:           make(chan struct{}),
		log:            log.With(zap.String("component", "websocket-hub")),
		allowedOrigins: allowedOrigins,
		loader:         loader,
		metrics:        metrics,
		pingInterval:   PingInterval,
	}
}

// Run 启动Hub，直到 ctx 取消
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.secrets[client.Secret] == nil {
				h.secrets[client.Secret] = make(map[string]*Client)
			}
			h.secrets[client.Secret][client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.updateClientGauge(count)
			h.log.Debug("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				if clients, exists := h.secrets[client.Secret]; exists {
					delete(clients, client.ID)
					if len(clients) == 0 {
						delete(h.secrets, client.Secret)
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.updateClientGauge(count)
			h.log.Debug("client unregistered", zap.String("id", client.ID))

		case msg := <-h.broadcast:
			h.broadcastToSecret(msg.Secret, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NotifyStatus 推送领取状态变更
func (h *Hub) NotifyStatus(secret string, history domain.ClaimHistory) {
	msg := &Message{
		Type:      MessageTypeClaimStatus,
		Secret:    secret,
		Data:      &history,
		Timestamp: time.Now(),
	}

	select {
	case h.broadcast <- &BroadcastMessage{Secret: secret, Message: msg}:
	default:
		h.log.Warn("broadcast queue full, dropping status notification")
	}
}

// Refresh 重新读取密钥的状态并推送，用于其他实例发布的变更
func (h *Hub) Refresh(ctx context.Context, secret string) {
	if !h.hasSubscribers(secret) {
		return
	}
	h.push(ctx, secret)
}

func (h *Hub) push(ctx context.Context, secret string) {
	if h.loader == nil {
		return
	}
	history, err := h.loader(ctx, secret)
	if err != nil {
		h.log.Warn("failed to load claim history", zap.Error(err))
		return
	}
	if history != nil {
		h.NotifyStatus(secret, *history)
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) hasSubscribers(secret string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.secrets[secret]) > 0
}

func (h *Hub) updateClientGauge(count int) {
	if h.metrics != nil {
		h.metrics.UpdateWebsocketClients(count)
	}
}

// broadcastToSecret 向关注该密钥的客户端广播消息
func (h *Hub) broadcastToSecret(secret string, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.secrets[secret] {
		select {
		case client.send <- data:
		default:
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	data, err := json.Marshal(&Message{Type: MessageTypePing, Timestamp: time.Now()})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.secrets = make(map[string]map[string]*Client)
	h.updateClientGauge(0)
}

// HandleWebSocket 处理WebSocket连接：GET /ws/claims?secret=
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		secret := c.Query("secret")
		if secret == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "secret is required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client := &Client{
			ID:     uuid.NewString(),
			Secret: secret,
			conn:   conn,
			hub:    hub,
			send:   make(chan []byte, 16),
			log:    hub.log,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()

		// 连接建立后推送一次当前状态
		hub.push(c.Request.Context(), secret)
	}
}

// readPump 读取客户端消息，只用于维持连接
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.pingInterval))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.pingInterval))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket error", zap.Error(err))
			}
			return
		}
		if msg.Type == MessageTypePong {
			_ = c.conn.SetReadDeadline(time.Now().Add(2 * c.hub.pingInterval))
		}
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
