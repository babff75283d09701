package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"transferscope/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is the envelope for every live feed frame.
type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const pingInterval = 30 * time.Second

// handleWebSocket upgrades the connection and streams the live transfer
// feed: one snapshot frame of recent transfers on connect, then one
// transfer frame per observed event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub, snapshot, err := s.opts.Feed.Subscribe(r.Context())
	if err != nil {
		s.log.Error("live feed subscribe failed", zap.Error(err))
		_ = conn.WriteJSON(wsMessage{Type: "error", Payload: map[string]string{"message": "live feed unavailable"}})
		return
	}
	defer s.opts.Feed.Unsubscribe(sub)

	s.log.Info("live feed client connected", zap.String("remote_addr", r.RemoteAddr))

	records := make([]model.TransferRecord, 0, len(snapshot))
	for _, event := range snapshot {
		records = append(records, event.Record(s.opts.Decimals))
	}
	if err := conn.WriteJSON(wsMessage{Type: "snapshot", Payload: records}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reads are only needed for close detection.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("live feed client disconnected", zap.String("remote_addr", r.RemoteAddr))
			return
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(wsMessage{Type: "transfer", Payload: event.Record(s.opts.Decimals)}); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteJSON(wsMessage{Type: "ping", Payload: map[string]int64{"timestamp": time.Now().Unix()}}); err != nil {
				return
			}
		}
	}
}
