package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-battle-backend/internal/auth"
	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/logging"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/internal/ws"
)

type Deps struct {
	Hub       *hub.Hub
	Store     store.Store
	Transport channel.Transport
	Auth      *auth.Verifier
	Rules     engine.Rules
	Logger    *zap.Logger
	Dev       bool
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Requests(d.Logger))
	r.Use(middleware.Recoverer)

	wsOpts := ws.Options{Dev: d.Dev, Logger: d.Logger}

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/rooms", ListRooms(d.Store, d.Logger))
	r.Get("/rooms/{id}", GetRoom(d.Hub, d.Logger))
	r.Get("/ws/lobby", ws.LobbyHandler(d.Store, d.Transport, wsOpts))
	if d.Dev {
		r.Post("/dev/token", DevToken(d.Auth))
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)
		r.Post("/rooms", CreateRoom(d.Hub, d.Store, d.Rules, d.Logger))
		r.Get("/ws/rooms/{id}", ws.RoomHandler(d.Hub, d.Transport, wsOpts))
	})
	return r
}
