package assistant

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/krishisevak/assistant/internal/model/query"
	sessionservice "github.com/krishisevak/assistant/internal/service/session"
	"github.com/krishisevak/assistant/pkg/utils"
)

// Handler exposes the session operations over HTTP.
type Handler struct {
	sessions *sessionservice.Manager
	queries  query.Store
}

// New creates the assistant HTTP handler.
func New(sessions *sessionservice.Manager, queries query.Store) *Handler {
	return &Handler{sessions: sessions, queries: queries}
}

// RegisterRoutes wires the assistant routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/queries", h.handleListQueries)

	r.Post("/session", h.handleCreateSession)
	r.Delete("/session/{sessionID}", h.handleCloseSession)
	r.Get("/session/{sessionID}/state", h.handleState)
	r.Post("/session/{sessionID}/messages", h.handleSendMessage)
	r.Post("/session/{sessionID}/quick", h.handleQuickQuery)
	r.Post("/session/{sessionID}/playback/{messageID}", h.handleTogglePlayback)
	r.Post("/session/{sessionID}/panel", h.handlePanel)
}

func (h *Handler) handleListQueries(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.queries.List())
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create(r.Context())
	s.OpenPanel()

	utils.RespondJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    s.ID(),
		"state": s.Snapshot(),
	})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolveSession(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Blank input is a silent no-op inside the session; the handler still
	// accepts the request so rapid taps never surface errors.
	s.SendText(r.Context(), payload.Text)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleQuickQuery(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		QueryID string `json:"queryId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, found := h.queries.FindByID(payload.QueryID); !found {
		utils.RespondError(w, http.StatusBadRequest, "unknown quick query")
		return
	}

	s.SendQuickQuery(r.Context(), payload.QueryID)
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) handleTogglePlayback(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	messageID := chi.URLParam(r, "messageID")
	if messageID == "" {
		utils.RespondError(w, http.StatusBadRequest, "messageID is required")
		return
	}

	s.TogglePlayback(messageID)
	utils.RespondJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolveSession(w, r)
	if !ok {
		return
	}

	var payload struct {
		Open bool `json:"open"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Open {
		s.OpenPanel()
	} else {
		s.ClosePanel()
	}
	utils.RespondJSON(w, http.StatusOK, s.Snapshot())
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Close(sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (h *Handler) resolveSession(w http.ResponseWriter, r *http.Request) (*sessionservice.Session, bool) {
	sessionID := chi.URLParam(r, "sessionID")
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, sessionservice.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
		} else {
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return s, true
}
