// File: internal/handlers/router.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/iyunix/go-lmproxy/internal/middleware"
	"github.com/iyunix/go-lmproxy/internal/ratelimit"
	"github.com/iyunix/go-lmproxy/internal/services"
)

type RouterConfig struct {
	API       *APIHandler
	Logs      *LogHandler
	Limiter   *ratelimit.MemoryRateLimiter // nil disables rate limiting
	StaticDir string                       // empty disables the web UI
	Logger    Logger
}

func NewRouter(cfg RouterConfig) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = &services.NoOpLogger{}
	}
	r := mux.NewRouter()
	r.Use(middleware.CORS)
	r.Use(middleware.RecoverPanic(cfg.Logger))
	r.Use(middleware.LoggingMiddleware(cfg.Logger))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", cfg.API.Status).Methods("GET")
	api.HandleFunc("/models", cfg.API.Models).Methods("GET")

	var chat http.Handler = http.HandlerFunc(cfg.API.Chat)
	if cfg.Limiter != nil {
		chat = middleware.RateLimitMiddleware(cfg.Limiter, "chat", cfg.Logger)(chat)
	}
	api.Handle("/chat", chat).Methods("POST")

	api.HandleFunc("/chats", cfg.API.ListChats).Methods("GET")
	api.HandleFunc("/chats", cfg.API.CreateChat).Methods("POST")
	api.HandleFunc("/chats", cfg.API.DeleteAllChats).Methods("DELETE")
	api.HandleFunc("/chats/{id}", cfg.API.GetChat).Methods("GET")
	api.HandleFunc("/chats/{id}", cfg.API.RenameChat).Methods("PUT")
	api.HandleFunc("/chats/{id}", cfg.API.DeleteChat).Methods("DELETE")
	api.HandleFunc("/chats/{id}/export", cfg.API.ExportChat).Methods("GET")
	if cfg.Logs != nil {
		api.HandleFunc("/log", cfg.Logs.LogFrontendEvent).Methods("POST")
	}

	// Preflight for every path; the CORS middleware answers it.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if cfg.StaticDir != "" {
		r.PathPrefix("/").
			MatcherFunc(func(req *http.Request, _ *mux.RouteMatch) bool {
				return !strings.HasPrefix(req.URL.Path, "/api/")
			}).
			Handler(http.FileServer(http.Dir(cfg.StaticDir))).
			Methods("GET", "HEAD")
	}

	// --- Custom Error Handlers ---
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, "Endpoint not found", r.URL.Path)
			return
		}
		http.NotFound(w, r)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", r.Method+" "+r.URL.Path)
	})

	return r
}
