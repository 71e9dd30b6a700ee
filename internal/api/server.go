package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"workflow-orchestrator/internal/models"
	"workflow-orchestrator/internal/ratelimit"
	"workflow-orchestrator/internal/store"
	"workflow-orchestrator/internal/telemetry"
)

// Sender is the synchronous ad hoc dispatch surface the API exposes.
type Sender interface {
	SendToGroup(ctx context.Context, alertGroupID int, title, content string, warnType models.WarningType) (bool, []models.AlertResult, error)
}

// AlertCreator is the storage surface for asynchronous alert ingestion.
type AlertCreator interface {
	CreateAlert(ctx context.Context, p store.CreateAlertParams) (bool, error)
}

// Server wires HTTP handlers for the alert-server API.
type Server struct {
	store   AlertCreator
	sender  Sender
	limiter *ratelimit.GroupLimiter
	log     *logrus.Logger
}

func New(st AlertCreator, sender Sender, limiter *ratelimit.GroupLimiter, log *logrus.Logger) *Server {
	return &Server{store: st, sender: sender, limiter: limiter, log: log}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/api/v1/alerts", s.handleCreateAlert)
	r.Post("/api/v1/alerts/send", s.handleSend)
	return r
}

type createAlertRequest struct {
	EventID               string `json:"eventId"`
	AlertGroupID          int    `json:"alertGroupId"`
	Title                 string `json:"title"`
	Content               string `json:"content"`
	AlertType             string `json:"alertType"`
	WarningType           string `json:"warningType"`
	ProcessDefinitionCode int64  `json:"processDefinitionCode"`
}

type createAlertResponse struct {
	EventID string `json:"eventId"`
	Created bool   `json:"created"`
}

// handleCreateAlert enqueues a pending alert for the background dispatcher.
// Duplicate event ids respond 202 without creating a second row.
func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Title == "" && req.Content == "" {
		http.Error(w, "title or content is required", http.StatusBadRequest)
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}
	warnType, err := models.ParseWarningType(req.WarningType)
	if err != nil {
		warnType = models.WarningAll
	}

	created, err := s.store.CreateAlert(r.Context(), store.CreateAlertParams{
		EventID:               req.EventID,
		AlertGroupID:          req.AlertGroupID,
		Title:                 req.Title,
		Content:               req.Content,
		AlertType:             models.AlertType(req.AlertType),
		WarningType:           warnType,
		ProcessDefinitionCode: req.ProcessDefinitionCode,
	})
	if err != nil {
		s.log.WithError(err).Error("create alert failed")
		http.Error(w, "create alert failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, createAlertResponse{EventID: req.EventID, Created: created})
}

type sendRequest struct {
	AlertGroupID int    `json:"alertGroupId"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	WarningType  string `json:"warningType"`
}

type sendResponse struct {
	Success bool                 `json:"success"`
	Results []models.AlertResult `json:"results"`
}

// handleSend dispatches an ad hoc alert synchronously and reports per-channel
// outcomes. Nothing is persisted on this path.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.AlertGroupID <= 0 {
		http.Error(w, "alertGroupId is required", http.StatusBadRequest)
		return
	}
	warnType, err := models.ParseWarningType(req.WarningType)
	if err != nil {
		warnType = models.WarningAll
	}

	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), req.AlertGroupID)
		if err != nil {
			s.log.WithError(err).Error("rate limit check failed")
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	ok, results, err := s.sender.SendToGroup(r.Context(), req.AlertGroupID, req.Title, req.Content, warnType)
	if err != nil {
		s.log.WithError(err).Error("ad hoc send failed")
		http.Error(w, "send failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse{Success: ok, Results: results})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
