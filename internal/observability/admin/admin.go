// Package admin serves the operator HTTP surface: liveness, Prometheus
// metrics, the job table with manual triggers, the audit trail and
// optional pprof.
//
// Everything except /healthz requires the bearer token when one is set.
// Binding to a non-loopback address without a token is refused unless
// AllowInsecure is set.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"fintrack/internal/observability/metrics"
	"fintrack/internal/runtime/supervisor"
	"fintrack/internal/storage"
	"fintrack/internal/task/scheduler"
	logx "fintrack/pkg/logx"
)

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool
}

// Jobs is the scheduler surface the router needs.
type Jobs interface {
	Snapshot() scheduler.Snapshot
	RunNow(ctx context.Context, name string) (scheduler.HistoryItem, error)
}

type AuditLister interface {
	ListAudit(ctx context.Context, limit int) ([]storage.AuditEntry, error)
}

type Deps struct {
	Jobs     Jobs
	Audit    AuditLister
	Gatherer prometheus.Gatherer
	// Goroutines, when set, backs GET /supervisor.
	Goroutines func() []supervisor.Stats
	// BaseContext is used for manual runs started without ?wait.
	BaseContext context.Context
	Log         logx.Logger
}

// NewRouter builds the admin handler.
func NewRouter(cfg Config, deps Deps) http.Handler {
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	base := deps.BaseContext
	if base == nil {
		base = context.Background()
	}
	h := &handlers{deps: deps, log: log, base: base}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))

		if deps.Gatherer != nil {
			r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
		}
		r.Get("/jobs", h.listJobs)
		r.Post("/jobs/{name}/run", h.runJob)
		if deps.Audit != nil {
			r.Get("/audit", h.listAudit)
		}
		if deps.Goroutines != nil {
			r.Get("/supervisor", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, deps.Goroutines())
			})
		}
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

type handlers struct {
	deps Deps
	log  logx.Logger
	base context.Context
}

func (h *handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Jobs.Snapshot())
}

// runJob triggers a job. With ?wait=1 the request blocks until the run
// ends; otherwise the run is detached from the request and 202 is returned.
func (h *handlers) runJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.known(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + name})
		return
	}
	h.log.Info("manual run requested", logx.String("job", name), logx.String("remote", r.RemoteAddr))

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait {
		go func() { _, _ = h.deps.Jobs.RunNow(h.base, name) }()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": name})
		return
	}

	item, err := h.deps.Jobs.RunNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrOverlapSkip):
		writeJSON(w, http.StatusConflict, item)
	case errors.Is(err, scheduler.ErrUnknownJob):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		// A failed run is still a completed request; the error is in the item.
		writeJSON(w, http.StatusOK, item)
	}
}

func (h *handlers) known(name string) bool {
	for _, s := range h.deps.Jobs.Snapshot().Schedules {
		if s.Name == name {
			return true
		}
	}
	return false
}

func (h *handlers) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be 1..1000"})
			return
		}
		limit = n
	}
	entries, err := h.deps.Audit.ListAudit(r.Context(), limit)
	if err != nil {
		h.log.Warn("list audit failed", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "audit unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				got = r.URL.Query().Get("token")
			}
			if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(tok)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on cfg.Addr and serves handler until ctx ends.
func Serve(ctx context.Context, cfg Config, handler http.Handler, log logx.Logger) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:9464"
	}
	if cfg.Token == "" && !cfg.AllowInsecure && !isLoopbackAddr(addr) {
		return errors.New("admin: non-loopback addr requires a token or allow_insecure")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("admin listening", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""), logx.Bool("pprof", cfg.Pprof))
	err = srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
