package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"drivewatch/internal/broadcast"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Operators connect from dashboards on other origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and bridges it to a broadcast
// subscription: facility-scoped when ?facility=N is given, the global
// stream otherwise. Delivery is push-based fire-and-forget; a dead peer
// is detected by ping timeouts and unsubscribed.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var facilityID int64
	if raw := r.URL.Query().Get("facility"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid facility id")
			return
		}
		facilityID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	var sub *broadcast.Subscriber
	if facilityID > 0 {
		sub = h.svc.JoinFacilityRoom(facilityID)
	} else {
		sub = h.svc.OpenStream()
	}

	h.logger.Info("websocket subscriber connected",
		"subscriber_id", sub.ID().String(),
		"facility", facilityID,
	)

	done := make(chan struct{})

	// Reader: we accept no client messages, but reading is what surfaces
	// close frames and errors.
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		h.svc.CloseSubscription(sub)
		_ = conn.Close()
		h.logger.Info("websocket subscriber disconnected", "subscriber_id", sub.ID().String())
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
