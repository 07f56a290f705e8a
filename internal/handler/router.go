package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/krishisevak/assistant/internal/handler/assistant"
	middlewarePkg "github.com/krishisevak/assistant/internal/middleware"
	"github.com/krishisevak/assistant/internal/model/query"
	sessionservice "github.com/krishisevak/assistant/internal/service/session"
	"github.com/krishisevak/assistant/pkg/utils"
)

// NewRouter wires HTTP routes to the session core.
func NewRouter(sessions *sessionservice.Manager, queries query.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	assistantHandler := assistant.New(sessions, queries)
	wsHandler := assistant.NewWebSocketHandler(sessions)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		assistantHandler.RegisterRoutes(api)
		assistantHandler.RegisterStreamRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
	})

	return r
}
