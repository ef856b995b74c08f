package httpapi

import (
	"io"
	"log/slog"
	"net/http"
)

// RouterConfig wires handlers into the mux. Middleware wraps the whole mux,
// outermost first.
type RouterConfig struct {
	Auth       *AuthHandler
	Profiles   *ProfileHandler
	Messages   *MessageHandler
	Live       http.Handler
	Metrics    http.Handler
	UploadDir  string
	Verifier   ClaimsVerifier
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()
	protected := Authenticate(cfg.Verifier, cfg.Logger)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "API is running!")
	})

	if cfg.Auth != nil {
		for _, prefix := range []string{"/api", "/api/users"} {
			mux.HandleFunc("POST "+prefix+"/register", cfg.Auth.Register)
			mux.HandleFunc("POST "+prefix+"/login", cfg.Auth.Login)
		}
	}

	if cfg.Profiles != nil {
		mux.Handle("GET /api/profile", protected(http.HandlerFunc(cfg.Profiles.Get)))
		mux.Handle("PUT /api/profile", protected(http.HandlerFunc(cfg.Profiles.Update)))
		mux.Handle("POST /api/profile/avatar", protected(http.HandlerFunc(cfg.Profiles.UploadAvatar)))
		mux.Handle("GET /api/users/profile", protected(http.HandlerFunc(cfg.Profiles.Summary)))
		mux.Handle("GET /api/users/all", protected(http.HandlerFunc(cfg.Profiles.ListUsers)))
	}

	if cfg.Messages != nil {
		mux.Handle("POST /api/messages/send", protected(http.HandlerFunc(cfg.Messages.Send)))
		mux.Handle("GET /api/messages/conversation/{userId}", protected(http.HandlerFunc(cfg.Messages.Conversation)))
	}

	if cfg.UploadDir != "" {
		mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}
	if cfg.Live != nil {
		mux.Handle("GET /ws", cfg.Live)
	}
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		handler = cfg.Middleware[i](handler)
	}
	return handler
}
