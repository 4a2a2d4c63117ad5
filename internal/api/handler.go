package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"walrus/internal/commands"
	"walrus/internal/timers"
	logx "walrus/pkg/logx"
)

// HealthSource reports the dispatcher state for /healthz.
type HealthSource interface {
	Snapshot() timers.Snapshot
}

type Options struct {
	CORSOrigins []string
	Debug       bool                // mounts the chi profiler under /debug
	Gatherer    prometheus.Gatherer // nil disables /metrics
	Health      HealthSource
}

type handler struct {
	reg   *commands.Registry
	stats commands.StatsSource
	opt   Options
	log   logx.Logger
}

// NewHandler builds the HTTP surface:
//
//	GET /api/all
//	GET /api/command/{command}
//	GET /api/stats
//	GET /api/socket
//	GET /api/categories
//	GET /healthz
//	GET /metrics
func NewHandler(reg *commands.Registry, stats commands.StatsSource, opt Options, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{reg: reg, stats: stats, opt: opt, log: log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(opt.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opt.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.health)
	if opt.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opt.Gatherer, promhttp.HandlerOpts{}))
	}
	if opt.Debug {
		r.Mount("/debug", chimw.Profiler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/all", h.all)
		r.Get("/command/{command}", h.command)
		r.Get("/stats", h.statsOnly)
		r.Get("/socket", h.socket)
		r.Get("/categories", h.categories)
	})
	return r
}

// Report is the full /api/all document, also exported to the gist.
type Report struct {
	Stats      commands.Stats                      `json:"stats"`
	Socket     map[string]int64                    `json:"socket"`
	Categories map[string]map[string]commands.Info `json:"categories"`
}

func BuildReport(ctx context.Context, reg *commands.Registry, src commands.StatsSource) (Report, error) {
	st, err := src.Stats(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{Stats: st, Socket: src.Socket(), Categories: categories(reg)}, nil
}

func categories(reg *commands.Registry) map[string]map[string]commands.Info {
	out := map[string]map[string]commands.Info{}
	for cat, cmds := range reg.Categories() {
		m := make(map[string]commands.Info, len(cmds))
		for _, c := range cmds {
			m[c.Name] = c.Info()
		}
		out[cat] = m
	}
	return out
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Warn("api request failed", logx.String("path", r.URL.Path), logx.String("rid", chimw.GetReqID(r.Context())), logx.Err(err))
	writeJSON(w, http.StatusInternalServerError, apiError{Message: "Internal error", Code: http.StatusInternalServerError})
}

func (h *handler) all(w http.ResponseWriter, r *http.Request) {
	rep, err := BuildReport(r.Context(), h.reg, h.stats)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	c, ok := h.reg.Get(chi.URLParam(r, "command"))
	if !ok || c.Hidden {
		writeJSON(w, http.StatusNotFound, apiError{Message: "Command not found", Code: http.StatusNotFound})
		return
	}
	writeJSON(w, http.StatusOK, c.Info())
}

func (h *handler) statsOnly(w http.ResponseWriter, r *http.Request) {
	st, err := h.stats.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) socket(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Socket())
}

func (h *handler) categories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, categories(h.reg))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	if h.opt.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	snap := h.opt.Health.Snapshot()
	status := http.StatusOK
	if snap.Error != "" || snap.State == timers.StateStopped.String() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}
