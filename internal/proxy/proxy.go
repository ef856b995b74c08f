package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// New returns a handler that forwards /api requests to target with the Host
// header rewritten to the target. Authorization is dropped on /api/login so
// stale client tokens never reach the upstream login.
func New(target string, logger *slog.Logger) (http.Handler, error) {
	upstream, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy target %q: %w", target, err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid proxy target %q: scheme and host required", target)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy", "target", upstream.String())

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
			if isLogin(pr.In.URL.Path) {
				pr.Out.Header.Del("Authorization")
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			http.Error(w, "Bad gateway", http.StatusBadGateway)
		},
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", rp)
	mux.Handle("/api", rp)
	return CORS(mux), nil
}

func isLogin(path string) bool {
	return path == "/api/login" || strings.HasPrefix(path, "/api/login/")
}

// CORS allows any origin and answers preflight requests directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
