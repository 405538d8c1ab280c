// Package server exposes stored card transactions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/diag"
	"github.com/ArionMiles/cardtracker/pkg/store"
)

const maxListLimit = 1000

// Server serves the transaction API.
type Server struct {
	store   store.Store
	metrics *diag.Metrics
	loc     *time.Location
	logger  *slog.Logger
}

// New creates a new Server. Months in queries are interpreted in loc.
func New(st store.Store, metrics *diag.Metrics, loc *time.Location, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if metrics == nil {
		metrics = diag.NewMetrics()
	}
	return &Server{store: st, metrics: metrics, loc: loc, logger: logger}
}

// Routes returns the HTTP handler with all routes and middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", s.listTransactions)
		r.Get("/summary", s.summary)
		r.Get("/{id}", s.getTransaction)
		r.Patch("/{id}/trust", s.setTrust)
		r.Delete("/{id}", s.deleteTransaction)
	})

	return r
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{Issuer: q.Get("issuer")}

	if m := q.Get("month"); m != "" {
		p, err := store.ParseMonth(m, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Period = &p
	}
	if v := q.Get("trusted"); v != "" {
		trusted, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "trusted must be true or false")
			return
		}
		f.Trusted = &trusted
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxListLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxListLimit))
			return
		}
		f.Limit = limit
	}

	start := time.Now()
	recs, err := s.store.List(r.Context(), f)
	s.metrics.RecordStoreDuration("list", time.Since(start))
	if err != nil {
		s.handleStoreError(w, err)
		return
	}
	if recs == nil {
		recs = []api.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

type summaryResponse struct {
	Month      string          `json:"month,omitempty"`
	ByIssuer   []store.Summary `json:"by_issuer"`
	GrandTotal store.Summary   `json:"grand_total"`
}

// summary aggregates trusted transactions for ?month=YYYY-MM, or all time.
func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")

	var (
		rows []store.Summary
		err  error
	)
	start := time.Now()
	if month == "" {
		rows, err = s.store.AllTimeByIssuer(r.Context())
	} else {
		p, perr := store.ParseMonth(month, s.loc)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		rows, err = s.store.SummaryByIssuer(r.Context(), p)
	}
	s.metrics.RecordStoreDuration("summary", time.Since(start))
	if err != nil {
		s.handleStoreError(w, err)
		return
	}
	if rows == nil {
		rows = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, summaryResponse{Month: month, ByIssuer: rows, GrandTotal: store.GrandTotal(rows)})
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.handleStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type trustRequest struct {
	Trusted *bool `json:"trusted"`
}

// setTrust records a manual verification decision.
func (s *Server) setTrust(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req trustRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil || req.Trusted == nil {
		writeError(w, http.StatusBadRequest, `body must be {"trusted": true|false}`)
		return
	}
	if err := s.store.SetTrusted(r.Context(), id, *req.Trusted); err != nil {
		s.handleStoreError(w, err)
		return
	}
	s.logger.Info("transaction trust updated", "id", id, "trusted", *req.Trusted)

	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.handleStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.handleStoreError(w, err)
		return
	}
	s.logger.Info("transaction deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	s.logger.Error("store request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
