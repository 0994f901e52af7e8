package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nvrd/internal/detect"
)

// upgrader is configured the same permissive way the teacher's signaling
// upgrader was (handlers/camera_handler.go): origin checking is left to the
// reverse proxy/CORS layer in front of nvrd, not this upgrade step.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// liveEvent is one message pushed to subscribers of GET /api/system/events:
// a camera's ingest/detection state changed, or a motion interval was emitted.
type liveEvent struct {
	Type      string    `json:"type"` // "camera_state" or "motion_interval"
	CameraID  uint       `json:"camera_id"`
	State     string    `json:"state,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// eventHub fans out liveEvents to every connected websocket subscriber,
// grounded on the teacher's gorilla/websocket signaling connections
// (services/webrtc_service.go) but generalized from WebRTC SDP exchange to
// a one-way status feed.
type eventHub struct {
	mu   sync.Mutex
	subs map[*websocket.Conn]chan liveEvent
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[*websocket.Conn]chan liveEvent)}
}

func (h *eventHub) subscribe(conn *websocket.Conn) chan liveEvent {
	ch := make(chan liveEvent, 32)
	h.mu.Lock()
	h.subs[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.subs[conn]
	delete(h.subs, conn)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *eventHub) publish(ev liveEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; drop the event rather than block publishers
			// (ingest/detect workers) on a stalled websocket write.
			_ = conn
		}
	}
}

// PublishCameraState notifies subscribers of an ingest/detection state
// transition for a camera. Neither ingest.Registry nor detect.Registry
// exposes a state-change callback, and cmd/nvrd does not call it.
func (s *Server) PublishCameraState(cameraID uint, state, detail string) {
	s.eventHub.publish(liveEvent{Type: "camera_state", CameraID: cameraID, State: state, Detail: detail, Timestamp: time.Now()})
}

// publishMotionInterval notifies subscribers that C5 emitted a motion
// interval for cameraID, ahead of C6 finishing clip assembly.
func (s *Server) publishMotionInterval(mi detect.MotionInterval) {
	s.eventHub.publish(liveEvent{Type: "motion_interval", CameraID: mi.CameraID, Detail: mi.Reason, Timestamp: mi.EndTime})
}

// SystemEvents handles GET /api/system/events: upgrades to a websocket and
// streams liveEvents until the client disconnects.
func (s *Server) SystemEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.eventHub.subscribe(conn)
	defer s.eventHub.unsubscribe(conn)

	// Drain client reads purely to detect disconnects; this feed is
	// server -> client only.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.eventHub.unsubscribe(conn)
				return
			}
		}
	}()

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
