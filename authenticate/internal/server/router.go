package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hsklearn/vocab-auth/common/httputil"
	"github.com/hsklearn/vocab-auth/common/messaging"
	"github.com/hsklearn/vocab-auth/common/middleware"
)

type RouterConfig struct {
	// Backend names the credential store for /healthz.
	Backend string
	// Publisher is the event bus, nil when disabled.
	Publisher   messaging.Publisher
	MetricsPath string
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
}

type healthResponse struct {
	Status    string                  `json:"status"`
	Backend   string                  `json:"backend"`
	Messaging *messaging.HealthStatus `json:"messaging,omitempty"`
}

// NewRouter mounts the action endpoint at /exec next to /healthz and the
// Prometheus handler, wrapped in the common middleware chain.
func NewRouter(actions http.Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/exec", actions)
	mux.HandleFunc("GET /healthz", healthHandler(cfg))
	if cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	var h http.Handler = mux
	h = middleware.CORS(cfg.CORS)(h)
	h = middleware.Recover(cfg.Logger)(h)
	h = middleware.AccessLog(cfg.Logger)(h)
	return middleware.RequestID(h)
}

// healthHandler reports degraded, still with 200, when the event bus is
// configured but disconnected. Verification does not depend on it.
func healthHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Backend: cfg.Backend}
		if cfg.Publisher != nil {
			st := messaging.CheckPublisherHealth(cfg.Publisher)
			resp.Messaging = &st
			if !st.Connected {
				resp.Status = "degraded"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
