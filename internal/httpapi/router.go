// Package httpapi exposes health, heartbeat and an admin chat endpoint that
// drives the same gateway as WhatsApp.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dwizi/wabot/internal/config"
	"github.com/dwizi/wabot/internal/gateway"
	"github.com/dwizi/wabot/internal/heartbeat"
	"github.com/dwizi/wabot/internal/store"
)

type MessageGateway interface {
	HandleMessage(ctx context.Context, input gateway.MessageInput) (gateway.MessageOutput, error)
}

type Store interface {
	Ping(ctx context.Context) error
	CountContacts(ctx context.Context) (store.ContactStats, error)
}

// Sender pushes an unsolicited message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID, text string) error
}

type Dependencies struct {
	Config              config.Config
	Store               Store
	Gateway             MessageGateway
	Sender              Sender
	Logger              *slog.Logger
	Heartbeat           *heartbeat.Registry
	HeartbeatStaleAfter time.Duration
	Version             string
}

type router struct {
	deps Dependencies
}

func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps}
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Get("/healthz", rt.handleHealth)
	r.Get("/readyz", rt.handleReady)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/heartbeat", rt.handleHeartbeat)
		r.Get("/info", rt.handleInfo)
		r.Post("/chat", rt.handleChat)
		r.Post("/send", rt.handleSend)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
