package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/maltedev/basket-harvester/internal/database"
	"github.com/maltedev/basket-harvester/internal/jobs"
	"github.com/maltedev/basket-harvester/internal/models"
	"github.com/maltedev/basket-harvester/internal/profile"
)

const (
	pendingWarnThreshold   = 1000
	deadLetterErrThreshold = 100
	defaultRunListLimit    = 50
	maxRunListLimit        = 500
)

type JobService interface {
	CreateJob(ctx context.Context, profileName string, maxPages int) (*jobs.Job, error)
	GetJob(id uuid.UUID) (*jobs.Job, error)
	ListJobs() []*jobs.Job
	GetStats() jobs.Stats
}

// RunStore reads persisted harvests. Nil when the database is disabled.
type RunStore interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.HarvestRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.HarvestRun, error)
	ListListings(ctx context.Context, runID uuid.UUID) ([]models.ProductRecord, error)
}

// OutboxStatus reports relay backlog for the health check. Nil when the relay
// is not running.
type OutboxStatus interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

type Handlers struct {
	jobs   JobService
	runs   RunStore
	outbox OutboxStatus
	logger *slog.Logger
}

func NewHandlers(jobs JobService, runs RunStore, outbox OutboxStatus, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		runs:   runs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

// Health reports ok, or the outbox backlog when a relay is attached.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"queue":  h.jobs.GetStats(),
	}

	status := http.StatusOK
	if h.outbox != nil {
		pendingCount, pendingErr := h.outbox.GetPendingCount(r.Context())
		deadLetterCount, deadErr := h.outbox.GetDeadLetterCount(r.Context())

		health["outbox"] = map[string]interface{}{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}

		switch {
		case pendingErr != nil || deadErr != nil:
			health["status"] = "error"
			health["message"] = "outbox status unavailable"
			status = http.StatusServiceUnavailable
		case deadLetterCount > deadLetterErrThreshold:
			health["status"] = "error"
			health["message"] = "high number of dead letter events"
			status = http.StatusServiceUnavailable
		case pendingCount > pendingWarnThreshold:
			health["status"] = "warning"
			health["message"] = "high number of pending outbox events"
		}
	}

	h.respondJSON(w, status, health)
}

// ProfileSummary describes an embedded site profile
type ProfileSummary struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Mode        profile.Mode `json:"mode"`
	StartURL    string       `json:"start_url"`
	Pages       int          `json:"pages"`
	Columns     []string     `json:"columns"`
}

func (h *Handlers) ListProfiles(w http.ResponseWriter, r *http.Request) {
	names := profile.Names()
	summaries := make([]ProfileSummary, 0, len(names))

	for _, name := range names {
		p, err := profile.Builtin(name)
		if err != nil {
			h.logger.Error("failed to load builtin profile", "profile", name, "error", err)
			continue
		}
		summaries = append(summaries, ProfileSummary{
			Name:        p.Name,
			Description: p.Description,
			Mode:        p.Mode,
			StartURL:    p.StartURL,
			Pages:       p.Pages,
			Columns:     p.Columns,
		})
	}

	h.respondJSON(w, http.StatusOK, summaries)
}

// CreateHarvestRequest queues a harvest of a builtin profile
type CreateHarvestRequest struct {
	Profile  string `json:"profile"`
	MaxPages int    `json:"max_pages"`
}

type CreateHarvestResponse struct {
	JobID   uuid.UUID   `json:"job_id"`
	Status  jobs.Status `json:"status"`
	Message string      `json:"message"`
}

func (h *Handlers) CreateHarvest(w http.ResponseWriter, r *http.Request) {
	var req CreateHarvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Profile == "" {
		h.respondError(w, http.StatusBadRequest, "profile is required")
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), req.Profile, req.MaxPages)
	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		h.respondError(w, http.StatusBadRequest, "unknown profile: "+req.Profile)
		return
	case errors.Is(err, jobs.ErrInvalidMaxPages):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "failed to queue harvest")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateHarvestResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "harvest queued",
	})
}

func (h *Handlers) GetHarvest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "jobID")
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListHarvests(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.ListJobs())
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.jobs.GetStats())
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRunListLimit)
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	h.respondJSON(w, http.StatusOK, runs)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "runID")
	if !ok {
		return
	}

	run, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, database.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get run", "run_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListRunListings(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "runID")
	if !ok {
		return
	}

	listings, err := h.runs.ListListings(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list listings", "run_id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	h.respondJSON(w, http.StatusOK, listings)
}

func (h *Handlers) parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
