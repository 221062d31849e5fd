package live

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/exec-dashboard/backend/internal/analysis/metrics"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	minInterval  = 5 * time.Second
	maxInterval  = 10 * time.Minute
)

// Handler WebSocket实时KPI推送处理器
type Handler struct {
	calc     *metrics.Calculator
	interval time.Duration
	upgrader websocket.Upgrader
}

// New 创建实时推送处理器
func New(calc *metrics.Calculator, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Handler{
		calc:     calc,
		interval: interval,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册实时推送路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/live", h.handleLive)
}

type inboundMessage struct {
	Type            string `json:"type"`
	IntervalSeconds int    `json:"intervalSeconds"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type kpiSnapshot struct {
	KPIs      metrics.KeyMetrics `json:"kpis"`
	Anomalies []metrics.Anomaly  `json:"anomalies"`
}

// handleLive upgrades the connection and pushes a KPI snapshot on a
// timer. Clients may send {"type":"refresh"} for an immediate snapshot
// or {"type":"config","intervalSeconds":n} to change the push cadence.
func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[live] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[live] new connection from %s", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	// Reads run in their own goroutine so a single writer owns the
	// connection's write side.
	inbound := make(chan inboundMessage, 4)
	go h.readLoop(cancel, conn, inbound)

	h.writeLoop(ctx, conn, inbound)
	log.Printf("[live] connection closed for %s", r.RemoteAddr)
}

func (h *Handler) readLoop(cancel context.CancelFunc, conn *websocket.Conn, inbound chan<- inboundMessage) {
	defer cancel()
	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[live] read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		inbound <- msg
	}
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, inbound <-chan inboundMessage) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	h.sendSnapshot(conn)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sendSnapshot(conn)
		case <-pinger.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-inbound:
			switch msg.Type {
			case "refresh":
				h.sendSnapshot(conn)
			case "config":
				interval := time.Duration(msg.IntervalSeconds) * time.Second
				if interval < minInterval || interval > maxInterval {
					h.sendError(conn, "intervalSeconds out of range")
					continue
				}
				ticker.Reset(interval)
				h.send(conn, outgoingMessage{
					Type:      "config",
					Data:      map[string]int{"intervalSeconds": msg.IntervalSeconds},
					Timestamp: time.Now().Unix(),
				})
			default:
				h.sendError(conn, "unsupported message type: "+msg.Type)
			}
		}
	}
}

func (h *Handler) sendSnapshot(conn *websocket.Conn) {
	anomalies := h.calc.DetectAnomalies(metrics.DefaultAnomalyThreshold)
	if anomalies == nil {
		anomalies = []metrics.Anomaly{}
	}
	h.send(conn, outgoingMessage{
		Type: "kpis",
		Data: kpiSnapshot{
			KPIs:      h.calc.KeyMetrics(),
			Anomalies: anomalies,
		},
		Timestamp: time.Now().Unix(),
	})
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	})
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[live] write failed: %v", err)
	}
}
