package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	identity "github.com/tarkov-database/identity-server"
	"github.com/tarkov-database/identity-server/admission"
)

// API routes HTTP requests to an identity engine.
type API struct {
	engine *identity.Engine
	pipe   *admission.Pipeline
	log    *zap.Logger
}

// New builds the API. A nil pipeline disables admission control; a nil
// logger disables logging.
func New(engine *identity.Engine, pipe *admission.Pipeline, log *zap.Logger) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{engine: engine, pipe: pipe, log: log}
}

// Handler returns the route table.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/accounts", a.admitted(a.handleCreateAccount))
	mux.HandleFunc("POST /v1/login", a.admitted(a.handleLogin))
	mux.HandleFunc("POST /v1/refresh", a.admitted(a.handleRefresh))
	mux.HandleFunc("POST /v1/logout", a.admitted(a.handleLogout))
	mux.HandleFunc("POST /v1/recovery/login", a.admitted(a.handleRecoveryLogin))

	mux.Handle("POST /v1/password", a.Guard(a.admitted(a.handleChangePassword)))
	mux.Handle("POST /v1/recovery", a.Guard(a.admitted(a.handleGenerateRecovery)))
	mux.Handle("POST /v1/sessions/revoke", a.Guard(a.admitted(a.handleRevokeAll)))

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /v1/metrics", a.handleMetrics)

	return mux
}

// handlerFunc is an HTTP handler that defers error rendering to the
// admission wrapper.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// trackingWriter remembers whether a response has been started, so the
// admission wrapper never writes a second status onto a committed
// response.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

// admitted wraps a handler with client IP propagation and the admission
// pipeline, and renders whatever error falls out.
func (a *API) admitted(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(identity.WithClientIP(r.Context(), clientIP(r)))

		tw := &trackingWriter{ResponseWriter: w}
		run := func(ctx context.Context) error {
			return next(tw, r.WithContext(ctx))
		}

		var err error
		if a.pipe == nil {
			err = run(r.Context())
		} else {
			err = a.pipe.Do(r.Context(), run)
		}
		if err == nil {
			return
		}
		if tw.wrote {
			// The response is already committed; the late error is only
			// loggable.
			a.log.Warn("error after response commit", zap.Error(err))
			return
		}
		a.writeError(tw, err)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			a.log.Warn("response encoding failed", zap.Error(err))
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps engine and admission errors to status codes. Unmapped
// errors become opaque 500s; details stay in the log.
func (a *API) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrTokenInvalid),
		errors.Is(err, identity.ErrRefreshReuse),
		errors.Is(err, identity.ErrRefreshExpired),
		errors.Is(err, identity.ErrRecoveryInvalid):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, identity.ErrConflict):
		status, msg = http.StatusConflict, "conflict"
	case errors.Is(err, identity.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, identity.ErrWeakPassword):
		status, msg = http.StatusBadRequest, "password too weak"
	case errors.Is(err, identity.ErrRateLimited):
		status, msg = http.StatusTooManyRequests, "rate limited"
	case errors.Is(err, admission.ErrCapacity):
		status, msg = http.StatusServiceUnavailable, "overloaded"
	case errors.Is(err, admission.ErrTimeout):
		status, msg = http.StatusGatewayTimeout, "timed out"
	case errors.Is(err, errBadRequest):
		status, msg = http.StatusBadRequest, "bad request"
	default:
		a.log.Error("request failed", zap.Error(err))
	}

	a.writeJSON(w, status, errorBody{Error: msg})
}
