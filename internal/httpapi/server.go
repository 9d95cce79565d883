package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/digkill/imagestudio/internal/catalog"
	"github.com/digkill/imagestudio/internal/kie"
	"github.com/digkill/imagestudio/internal/models"
	"github.com/digkill/imagestudio/internal/service"
)

const maxImportSize = 16 << 20

type Server struct {
	addr          string
	log           *slog.Logger
	history       *service.HistoryService
	subscriptions *service.SubscriptionService
	generation    *service.GenerationService
	router        *chi.Mux
	now           func() time.Time
}

func NewServer(addr string, corsOrigins []string, log *slog.Logger, history *service.HistoryService, subscriptions *service.SubscriptionService, generation *service.GenerationService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s := &Server{
		addr:          addr,
		log:           log,
		history:       history,
		subscriptions: subscriptions,
		generation:    generation,
		router:        r,
		now:           time.Now,
	}

	r.Get("/plans", s.handleListPlans)
	r.Get("/templates", s.handleListTemplates)
	r.Route("/subscription", func(r chi.Router) {
		r.Get("/", s.handleGetSubscription)
		r.Get("/usage", s.handleUsage)
		r.Post("/upgrade", s.handleUpgrade)
		r.Post("/cancel", s.handleCancel)
	})
	r.Route("/history", func(r chi.Router) {
		r.Get("/", s.handleListHistory)
		r.Delete("/", s.handleClearHistory)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Get("/stats", s.handleStats)
		r.Delete("/{id}", s.handleDeleteImage)
	})
	r.Post("/generate", s.handleGenerate)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Generation waits on provider polling.
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, catalog.Plans())
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		s.writeJSON(w, http.StatusOK, catalog.TemplatesByCategory(catalog.TemplateCategory(category)))
		return
	}
	s.writeJSON(w, http.StatusOK, catalog.Templates())
}

type subscriptionResponse struct {
	Subscription    models.UserSubscription   `json:"subscription"`
	EffectiveStatus models.SubscriptionStatus `json:"effectiveStatus"`
	Plan            models.Plan               `json:"plan"`
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub := s.subscriptions.GetUserSubscription(r.Context())
	s.writeJSON(w, http.StatusOK, subscriptionResponse{
		Subscription:    sub,
		EffectiveStatus: sub.EffectiveStatus(s.now()),
		Plan:            s.subscriptions.GetCurrentPlan(r.Context()),
	})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.subscriptions.GetUsageStats(r.Context()))
}

type upgradeRequest struct {
	PlanID string `json:"planId"`
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	var req upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, ok := catalog.FindPlan(req.PlanID); !ok {
		http.Error(w, "plan not found", http.StatusNotFound)
		return
	}
	s.subscriptions.UpgradePlan(r.Context(), req.PlanID)
	s.handleGetSubscription(w, r)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.subscriptions.CancelSubscription(r.Context())
	s.handleGetSubscription(w, r)
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	precedence, err := service.ParsePrecedence(q.Get("precedence"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	category := models.Category(q.Get("category"))
	if category != "" && !category.Valid() {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.history.Query(r.Context(), service.HistoryQuery{
		Text:       q.Get("q"),
		Category:   category,
		Tag:        q.Get("tag"),
		Precedence: precedence,
	}))
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	s.history.ClearHistory(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	s.history.DeleteImage(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.history.ExportHistory(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="image-history.json"`)
	_, _ = io.WriteString(w, snapshot)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	if !s.history.ImportHistory(r.Context(), string(body)) {
		http.Error(w, "invalid history snapshot", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"imported": len(s.history.GetAllImages(r.Context())),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.history.GetStats(r.Context()))
}

type generateRequest struct {
	Prompt       string          `json:"prompt"`
	Models       []string        `json:"models"`
	TemplateID   string          `json:"templateId"`
	AspectRatio  string          `json:"aspectRatio"`
	Resolution   string          `json:"resolution"`
	InputURLs    []string        `json:"inputUrls"`
	OutputFormat string          `json:"outputFormat"`
	Tags         []string        `json:"tags"`
	Category     models.Category `json:"category"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	targets := make([]kie.Model, 0, len(req.Models))
	for _, raw := range req.Models {
		model, err := kie.ParseModel(raw)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		targets = append(targets, model)
	}

	result, err := s.generation.Generate(r.Context(), service.GenerationRequest{
		Prompt:       req.Prompt,
		Models:       targets,
		TemplateID:   req.TemplateID,
		AspectRatio:  req.AspectRatio,
		Resolution:   req.Resolution,
		InputURLs:    req.InputURLs,
		OutputFormat: req.OutputFormat,
		Tags:         req.Tags,
		Category:     req.Category,
	})
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, result)
	case errors.Is(err, service.ErrPromptRequired), errors.Is(err, service.ErrUnknownTemplate):
		s.badRequest(w, err)
	case errors.Is(err, service.ErrTemplateNotAllowed):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusPaymentRequired)
	case result != nil:
		s.log.Error("generation failed", "err", err)
		s.writeJSON(w, http.StatusBadGateway, result)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("http handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
