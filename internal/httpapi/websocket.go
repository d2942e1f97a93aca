package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// handleWebSocket relays every Event Bus publication to the connected
// client as JSON text frames, until the client disconnects or the
// subscriber's buffer overflows and the bus drops it (§5
// "drop-subscriber-on-overflow"). Kept to framing only, per §6.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	events, unsubscribe := s.manager.Subscribe()
	defer unsubscribe()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "client disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "subscriber dropped")
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				s.log.Warn().Err(err).Msg("failed to marshal event for websocket relay")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed, closing relay")
				return
			}
		}
	}
}
