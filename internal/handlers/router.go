package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-chatreplay/internal/events"
	"github.com/iyunix/go-chatreplay/internal/middleware"
	"github.com/iyunix/go-chatreplay/internal/ratelimit"
	"github.com/iyunix/go-chatreplay/internal/registry"
	"github.com/iyunix/go-chatreplay/internal/services"
)

// RouterDeps is everything the HTTP API is served from. A nil Limiter disables rate
// limiting of model invocations.
type RouterDeps struct {
	Chats       *services.ChatService
	Replays     *services.ReplayService
	Compare     *services.CompareService
	Registry    *registry.Registry
	Broadcaster *events.Broadcaster
	Limiter     *ratelimit.Limiter
	CORSOrigins []string
	Logger      *slog.Logger
}

// NewRouter builds the API. CORS wraps the router so preflight requests are answered
// before route matching.
func NewRouter(d RouterDeps) http.Handler {
	conversations := NewConversationHandler(d.Chats)
	replays := NewReplayHandler(d.Replays)
	comparisons := NewCompareHandler(d.Compare, d.Logger)
	eventsHandler := NewEventsHandler(d.Broadcaster, d.Logger)
	models := NewModelHandler(d.Registry)

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RecoverPanic(d.Logger))
	r.Use(middleware.LoggingMiddleware(d.Logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/log", LogFrontendEvent(d.Logger)).Methods("POST")
	api.HandleFunc("/models", models.ListModels).Methods("GET")

	api.HandleFunc("/conversations", conversations.ListConversations).Methods("GET")
	api.HandleFunc("/conversations", conversations.CreateConversation).Methods("POST")
	api.HandleFunc("/conversations/{id}", conversations.GetConversation).Methods("GET")
	api.HandleFunc("/conversations/{id}", conversations.UpdateConversation).Methods("PATCH")
	api.HandleFunc("/conversations/{id}", conversations.DeleteConversation).Methods("DELETE")
	api.HandleFunc("/conversations/{id}/stop", conversations.Stop).Methods("POST")
	api.HandleFunc("/conversations/{id}/rows/{row:[0-9]+}", conversations.DeleteRow).Methods("DELETE")
	api.HandleFunc("/conversations/{id}/messages/{row:[0-9]+}/rating", conversations.RateMessage).Methods("PUT")
	api.HandleFunc("/conversations/{id}/replay", conversations.DuplicateForReplay).Methods("POST")
	api.HandleFunc("/conversations/{id}/events", eventsHandler.HandleEvents).Methods("GET")

	api.HandleFunc("/replays/{id}", replays.Status).Methods("GET")
	api.HandleFunc("/replays/{id}/stop", replays.Stop).Methods("POST")
	api.HandleFunc("/replays/{id}/settings", replays.OverrideSettings).Methods("PUT")

	api.HandleFunc("/compare", comparisons.View).Methods("GET")
	api.HandleFunc("/compare", comparisons.CreateComparison).Methods("POST")
	api.HandleFunc("/compare/selection", comparisons.Select).Methods("PUT")
	api.HandleFunc("/compare/candidates", comparisons.Candidates).Methods("GET")
	api.HandleFunc("/compare/rows/{row:[0-9]+}", comparisons.DeleteRow).Methods("DELETE")

	// Everything below invokes a model.
	invoke := api.NewRoute().Subrouter()
	if d.Limiter != nil {
		invoke.Use(middleware.RateLimitMiddleware(d.Limiter, "invoke", d.Logger))
	}
	invoke.HandleFunc("/conversations/{id}/messages", conversations.SendMessage).Methods("POST")
	invoke.HandleFunc("/conversations/{id}/messages/{row:[0-9]+}", conversations.EditMessage).Methods("PUT")
	invoke.HandleFunc("/conversations/{id}/regenerate", conversations.Regenerate).Methods("POST")
	invoke.HandleFunc("/replays/{id}/start", replays.Start).Methods("POST")
	invoke.HandleFunc("/replays/{id}/retry", replays.Retry).Methods("POST")
	invoke.HandleFunc("/compare/messages", comparisons.SendToBoth).Methods("POST")
	invoke.HandleFunc("/compare/rows/{row:[0-9]+}", comparisons.EditRow).Methods("PUT")
	invoke.HandleFunc("/compare/sides/{id}/regenerate", comparisons.RegenerateSide).Methods("POST")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	return middleware.CORS(d.CORSOrigins)(r)
}
