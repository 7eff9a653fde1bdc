package http

import (
	"net/http"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// any origin, matching CORSMiddleware
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GetStream pushes every published view model to the client as a JSON text frame,
// starting with the current one when it exists.
func (h *Handler) GetStream(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("Failed to upgrade to WebSocket", "error", err)
		return
	}

	updates, unsubscribe := h.dashboard.Subscribe()
	metrics.StreamSubscribers.Inc()

	closed := make(chan struct{})
	go h.readPump(ws, closed)

	h.writePump(ws, h.dashboard.ViewModel(), updates, closed)

	unsubscribe()
	metrics.StreamSubscribers.Dec()
}

func (h *Handler) writePump(ws *websocket.Conn, initial *domain.DashboardViewModel, updates <-chan *domain.DashboardViewModel, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	if initial != nil {
		if err := h.writeModel(ws, initial); err != nil {
			return
		}
	}

	for {
		select {
		case vm, ok := <-updates:
			if !ok {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := h.writeModel(ws, vm); err != nil {
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return
		}
	}
}

func (h *Handler) writeModel(ws *websocket.Conn, vm *domain.DashboardViewModel) error {
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(vm); err != nil {
		h.logger.Debugw("Stream write failed", "cycle_id", vm.CycleID, "error", err)
		return err
	}
	return nil
}

func (h *Handler) readPump(ws *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugw("Stream closed unexpectedly", "error", err)
			}
			return
		}
	}
}
