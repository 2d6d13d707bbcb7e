package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/EVTKSU/ROB-Autonomous/server/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// TelemetryHub pushes every received report to connected websocket clients.
type TelemetryHub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	clients  map[*wsClient]struct{}
	mutex    sync.RWMutex
}

type ClientMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type ServerMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan ServerMessage
	done chan struct{}
	once sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

func NewTelemetryHub(logger *zap.Logger) *TelemetryHub {
	return &TelemetryHub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *TelemetryHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket connection", zap.Error(err))
		return
	}
	defer conn.Close()

	clientIP := c.ClientIP()
	h.logger.Info("WebSocket client connected", zap.String("client_ip", clientIP))

	client := &wsClient{
		conn: conn,
		send: make(chan ServerMessage, sendBuffer),
		done: make(chan struct{}),
	}
	h.register(client)
	defer h.unregister(client)

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeRoutine(client)
	}()

	for {
		var message ClientMessage
		if err := conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		h.handleMessage(client, &message)
	}

	client.stop()
	<-writerDone
	h.logger.Info("WebSocket client disconnected", zap.String("client_ip", clientIP))
}

func (h *TelemetryHub) handleMessage(client *wsClient, message *ClientMessage) {
	switch message.Type {
	case "ping":
		h.enqueue(client, ServerMessage{Type: "pong", Data: map[string]any{"timestamp": time.Now().Unix()}})
	default:
		h.logger.Warn("Unknown message type received", zap.String("type", message.Type))
		h.enqueue(client, ServerMessage{Type: "error", Data: map[string]any{
			"message":   "Unknown message type: " + message.Type,
			"timestamp": time.Now().Unix(),
		}})
	}
}

// Broadcast never blocks; a client whose buffer is full misses the report.
func (h *TelemetryHub) Broadcast(report models.Report) {
	message := ServerMessage{Type: "report", Data: report}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		h.enqueue(client, message)
	}
}

func (h *TelemetryHub) enqueue(client *wsClient, message ServerMessage) {
	select {
	case client.send <- message:
	default:
		h.logger.Debug("WebSocket client too slow, message dropped", zap.String("type", message.Type))
	}
}

// writeRoutine is the only writer on the connection.
func (h *TelemetryHub) writeRoutine(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(message); err != nil {
				h.logger.Error("Failed to send WebSocket message", zap.Error(err))
				client.conn.Close()
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Failed to send ping", zap.Error(err))
				client.conn.Close()
				return
			}
		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *TelemetryHub) register(client *wsClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[client] = struct{}{}
}

func (h *TelemetryHub) unregister(client *wsClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.clients, client)
}

func (h *TelemetryHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close asks every client to disconnect.
func (h *TelemetryHub) Close() {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for client := range h.clients {
		client.stop()
	}
}
