// Package httpapi expone los reportes del engine y los disparadores de
// administración sobre HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alejandrodnm/polybet/internal/application/engine"
	"github.com/alejandrodnm/polybet/internal/domain"
	"github.com/alejandrodnm/polybet/internal/ports"
)

// AdminTokenHeader lleva la credencial compartida de las rutas admin.
const AdminTokenHeader = "X-Admin-Token"

const (
	defaultLimit = 50
	maxLimit     = 500
	recentLimit  = 20
)

// Service es lo que el servidor necesita del engine.
// *engine.Engine la implementa.
type Service interface {
	Leaderboard(ctx context.Context) ([]engine.LeaderboardRow, error)
	StrategyDetail(ctx context.Context, id string, recent int) (*engine.StrategyDetail, error)
	Snapshots(ctx context.Context, id string) ([]domain.BankrollSnapshot, error)
	Commitments(ctx context.Context, f ports.CommitmentFilter) (*engine.CommitmentPage, error)

	RunPlacementCycle(ctx context.Context) (*engine.PlacementResult, error)
	RunPriceUpdate(ctx context.Context) (*engine.PriceResult, error)
	RunSettlement(ctx context.Context) (*engine.SettlementResult, error)
	RunElimination(ctx context.Context) (*engine.EliminationResult, error)
	TakeSnapshot(ctx context.Context, date time.Time) (int, error)
	ResetStrategy(ctx context.Context, id string) (domain.Strategy, error)
	CloseManual(ctx context.Context, id string, price float64) (domain.Commitment, error)
}

// Server sirve la API de reportes y administración.
type Server struct {
	svc   Service
	token string
	now   func() time.Time
}

// New crea el servidor. Con token vacío las rutas admin responden 403.
func New(svc Service, adminToken string) *Server {
	return &Server{svc: svc, token: adminToken, now: time.Now}
}

// Handler construye el router chi con todas las rutas.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/leaderboard", s.leaderboard)
		r.Get("/strategies/{id}", s.strategy)
		r.Get("/strategies/{id}/snapshots", s.snapshots)
		r.Get("/commitments", s.commitments)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/placement", s.runPlacement)
			r.Post("/prices", s.runPrices)
			r.Post("/settlement", s.runSettlement)
			r.Post("/elimination", s.runElimination)
			r.Post("/snapshot", s.runSnapshot)
			r.Post("/strategies/{id}/reset", s.resetStrategy)
			r.Post("/commitments/{id}/close", s.closeCommitment)
		})
	})
	return r
}

// ListenAndServe sirve en addr hasta que ctx se cancela y luego hace shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("httpapi: stopped")
	return nil
}

// requireAdmin compara el token en tiempo constante.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			respondError(w, http.StatusForbidden, "admin API disabled", nil)
			return
		}
		got := r.Header.Get(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			respondError(w, http.StatusUnauthorized, "invalid admin token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("httpapi: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// --- reportes ---

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.Leaderboard(r.Context())
	if err != nil {
		respondErr(w, "leaderboard", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"strategies": rows,
		"count":      len(rows),
	})
}

func (s *Server) strategy(w http.ResponseWriter, r *http.Request) {
	recent := parseIntParam(r, "recent", recentLimit)
	d, err := s.svc.StrategyDetail(r.Context(), chi.URLParam(r, "id"), recent)
	if err != nil {
		respondErr(w, "strategy detail", err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) snapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.svc.Snapshots(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, "snapshots", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

func (s *Server) commitments(w http.ResponseWriter, r *http.Request) {
	f := ports.CommitmentFilter{
		StrategyID: r.URL.Query().Get("strategy"),
		Page:       parseIntParam(r, "page", 1),
		Limit:      parseIntParam(r, "limit", defaultLimit),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		st, err := domain.ParseCommitmentStatus(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		f.Status = st
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > maxLimit {
		f.Limit = defaultLimit
	}

	page, err := s.svc.Commitments(r.Context(), f)
	if err != nil {
		respondErr(w, "commitments", err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// --- admin ---

func (s *Server) runPlacement(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RunPlacementCycle(r.Context())
	if err != nil {
		respondErr(w, "placement", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) runPrices(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RunPriceUpdate(r.Context())
	if err != nil {
		respondErr(w, "price update", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) runSettlement(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RunSettlement(r.Context())
	if err != nil {
		respondErr(w, "settlement", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) runElimination(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.RunElimination(r.Context())
	if err != nil {
		respondErr(w, "elimination", err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// runSnapshot acepta ?date=YYYY-MM-DD; por defecto hoy en UTC.
func (s *Server) runSnapshot(w http.ResponseWriter, r *http.Request) {
	date := s.now().UTC()
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := time.Parse(time.DateOnly, v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", err)
			return
		}
		date = d
	}
	n, err := s.svc.TakeSnapshot(r.Context(), date)
	if err != nil {
		respondErr(w, "snapshot", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"date":      date.Format(time.DateOnly),
		"snapshots": n,
	})
}

func (s *Server) resetStrategy(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.ResetStrategy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, "reset", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

type closeRequest struct {
	Price float64 `json:"price"` // 0 = último precio conocido
}

func (s *Server) closeCommitment(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body", err)
			return
		}
	}
	if req.Price < 0 {
		respondError(w, http.StatusBadRequest, "price must be >= 0", nil)
		return
	}
	c, err := s.svc.CloseManual(r.Context(), chi.URLParam(r, "id"), req.Price)
	if err != nil {
		respondErr(w, "close", err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// --- helpers ---

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// respondErr traduce los errores del dominio a códigos HTTP.
func respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, op+": not found", nil)
	case errors.Is(err, domain.ErrAlreadyClosed):
		respondError(w, http.StatusConflict, op+": already closed", nil)
	case errors.Is(err, domain.ErrDataUnavailable):
		respondError(w, http.StatusUnprocessableEntity, op+": "+err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, op+": cancelled", err)
	default:
		respondError(w, http.StatusInternalServerError, op+" failed", err)
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("httpapi: encode response", "err", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		slog.Warn("httpapi: "+message, "err", err)
	}
	respondJSON(w, status, errorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

func parseIntParam(r *http.Request, param string, defaultValue int) int {
	v := r.URL.Query().Get(param)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
