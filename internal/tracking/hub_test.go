package tracking

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kamuit/internal/logging"
	"kamuit/internal/modules/location"
	"kamuit/internal/types"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(logging.Discard())
	r := gin.New()
	r.GET("/rides/:id/stream", hub.Subscribe)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitSubscribers(t *testing.T, hub *Hub, rideID types.ID, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(rideID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers for %s, got %d", want, rideID, hub.Subscribers(rideID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcastReachesRideSubscribers(t *testing.T) {
	hub, base := startHub(t)
	a := dial(t, base+"/rides/r1/stream")
	b := dial(t, base+"/rides/r1/stream")
	other := dial(t, base+"/rides/r2/stream")
	waitSubscribers(t, hub, "r1", 2)
	waitSubscribers(t, hub, "r2", 1)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	hub.BroadcastSnapshot(location.Snapshot{
		RideID:     "r1",
		DriverID:   "d1",
		Position:   types.Point{Lat: 37.78, Lng: -122.40},
		RecordedAt: at,
	})

	for _, ws := range []*websocket.Conn{a, b} {
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.RideID != "r1" || msg.DriverID != "d1" || msg.Lat != 37.78 || !msg.RecordedAt.Equal(at) {
			t.Fatalf("unexpected message: %+v", msg)
		}
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("subscriber of another ride must not receive the ping")
	}
}

func TestDisconnectRemovesSubscriber(t *testing.T) {
	hub, base := startHub(t)
	ws := dial(t, base+"/rides/r1/stream")
	waitSubscribers(t, hub, "r1", 1)

	_ = ws.Close()
	waitSubscribers(t, hub, "r1", 0)

	// No subscribers left; must not block or panic.
	hub.BroadcastSnapshot(location.Snapshot{RideID: "r1"})
}
