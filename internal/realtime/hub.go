package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dushixiang/beacon/internal/protocol"
	"github.com/dushixiang/beacon/internal/repo"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// close 通知写循环退出，连接由写循环关闭
func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Hub 看板客户端的 WebSocket 连接管理，负责推送探针事件
type Hub struct {
	logger   *zap.Logger
	agents   repo.AgentRepository
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(logger *zap.Logger, agents repo.AgentRepository) *Hub {
	return &Hub{
		logger: logger,
		agents: agents,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// ServeWS 升级连接，先推送在线探针快照，再持续推送事件，直到连接断开
// 客户端先注册再读取快照，读取期间发布的事件在发送队列中排在快照之后，不会丢失
// GET /api/ws
func (h *Hub) ServeWS(c echo.Context) error {
	cl := &client{
		id:   uuid.NewString(),
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.register(cl)
	defer h.unregister(cl)

	agents, err := h.agents.FindConnected(c.Request().Context())
	if err != nil {
		h.logger.Error("查询在线探针失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "查询在线探针失败",
		})
	}
	snapshot, err := json.Marshal(protocol.Event{
		Event:     protocol.EventAgentSnapshot,
		Agents:    agents,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade 失败时已写入响应
		h.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return nil
	}
	cl.conn = conn

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, snapshot); err != nil {
		h.logger.Debug("推送快照失败", zap.String("client", cl.id), zap.Error(err))
		_ = conn.Close()
		return nil
	}

	var wg conc.WaitGroup
	wg.Go(func() { h.writePump(cl) })
	wg.Go(func() { h.readPump(cl) })
	wg.Wait()
	return nil
}

// Publish 向所有客户端广播事件，发送队列已满的客户端会被断开
func (h *Hub) Publish(event protocol.Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("序列化事件失败", zap.String("event", string(event.Event)), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		select {
		case cl.send <- data:
		default:
			h.logger.Warn("客户端发送队列已满，断开连接", zap.String("client", cl.id))
			cl.close()
		}
	}
}

// Count 当前连接的客户端数量
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		cl.close()
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl.id] = cl
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("客户端已连接", zap.String("client", cl.id), zap.Int("clients", n))
}

func (h *Hub) unregister(cl *client) {
	cl.close()
	h.mu.Lock()
	delete(h.clients, cl.id)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("客户端已断开", zap.String("client", cl.id), zap.Int("clients", n))
}

// readPump 看板不发送业务消息，读循环只用于处理 pong 和关闭帧
func (h *Hub) readPump(cl *client) {
	defer cl.close()

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("读取客户端消息失败", zap.String("client", cl.id), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.close()
		// 关闭连接让读循环退出
		_ = cl.conn.Close()
	}()

	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("推送事件失败", zap.String("client", cl.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}
