// README: Live ride tracking over WebSocket; riders subscribe to a ride and receive each driver ping.
package tracking

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kamuit/internal/modules/location"
	"kamuit/internal/types"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the frame sent to subscribers for every recorded ping.
type Message struct {
	RideID     string    `json:"ride_id"`
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}

// conn serialises writes; gorilla/websocket allows one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

// Hub keeps the open subscriptions per ride.
type Hub struct {
	mu     sync.RWMutex
	conns  map[types.ID][]*conn
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{conns: make(map[types.ID][]*conn), logger: logger}
}

// Subscribe upgrades the request and holds the connection until the client goes away.
func (h *Hub) Subscribe(c *gin.Context) {
	rideID := types.ID(c.Param("id"))
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "ride_id", rideID, "err", err)
		return
	}
	sc := &conn{ws: ws}
	h.add(rideID, sc)
	h.logger.Debug("ws subscriber connected", "ride_id", rideID)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(rideID, sc)
	_ = ws.Close()
	h.logger.Debug("ws subscriber disconnected", "ride_id", rideID)
}

// BroadcastSnapshot implements location.Broadcaster.
func (h *Hub) BroadcastSnapshot(snap location.Snapshot) {
	h.mu.RLock()
	conns := append([]*conn(nil), h.conns[snap.RideID]...)
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	msg := Message{
		RideID:     string(snap.RideID),
		DriverID:   string(snap.DriverID),
		Lat:        snap.Position.Lat,
		Lng:        snap.Position.Lng,
		RecordedAt: snap.RecordedAt,
	}
	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			h.logger.Warn("ws write failed", "ride_id", snap.RideID, "err", err)
		}
	}
}

// Subscribers reports the number of open connections for a ride.
func (h *Hub) Subscribers(rideID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[rideID])
}

func (h *Hub) add(rideID types.ID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[rideID] = append(h.conns[rideID], c)
}

func (h *Hub) remove(rideID types.ID, c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[rideID]
	for i, existing := range conns {
		if existing == c {
			h.conns[rideID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[rideID]) == 0 {
		delete(h.conns, rideID)
	}
}
