package assistant

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/krishisevak/assistant/pkg/utils"
)

const heartbeatInterval = 8 * time.Second

// RegisterStreamRoutes wires the SSE state stream.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// handleStream pushes state snapshots to the presentation layer: one on
// connect, one after every session transition, plus notice events and a
// heartbeat so proxies keep the stream alive.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	s, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	utils.SetupSSEHeaders(w)

	updates, cancelUpdates := s.Subscribe()
	defer cancelUpdates()
	notices, cancelNotices := s.SubscribeNotices()
	defer cancelNotices()

	ctx := r.Context()
	log.Printf("[sse] opening state stream for session=%s", s.ID())
	defer log.Printf("[sse] closing state stream for session=%s", s.ID())

	utils.SendSSEEvent(w, flusher, "state", s.Snapshot())

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			utils.SendSSEEvent(w, flusher, "state", s.Snapshot())
		case text := <-notices:
			utils.SendSSEEvent(w, flusher, "notice", map[string]string{"text": text})
		case t := <-ticker.C:
			utils.SendSSEChunk(w, flusher, map[string]any{
				"event": "heartbeat",
				"time":  t.UTC().Format(time.RFC3339),
			})
		}
	}
}
