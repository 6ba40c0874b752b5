package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/service"
)

// DefaultStreamRefresh is how often an event stream re-reads the job when
// no event arrives. It bounds staleness if an event is dropped.
const DefaultStreamRefresh = 5 * time.Second

// EventSubscriber delivers status events for one job. It is satisfied by
// *events.Broker.
type EventSubscriber interface {
	Subscribe(jobID uuid.UUID) (<-chan events.JobEvent, func())
}

// JobHandler handles job HTTP requests.
type JobHandler struct {
	jobService service.JobService
	events     EventSubscriber
	refresh    time.Duration
}

// NewJobHandler creates a JobHandler. subscriber may be nil, in which case the
// event stream falls back to re-reading the job every refresh interval.
func NewJobHandler(jobService service.JobService, subscriber EventSubscriber, refresh time.Duration) *JobHandler {
	if refresh <= 0 {
		refresh = DefaultStreamRefresh
	}
	return &JobHandler{
		jobService: jobService,
		events:     subscriber,
		refresh:    refresh,
	}
}

// CreateJob handles POST /jobs.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Validation error: "+shared.ValidationMessage(err), err)
		return
	}

	id, err := h.jobService.CreateJob(r.Context(), service.CreateJobInput{
		Type:           req.Type,
		Params:         req.Params,
		TimeoutSeconds: req.TimeoutSeconds,
		OwnerID:        shared.GetOwnerID(r.Context()),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateJobResponse{JobID: id.String()})
}

// GetJob handles GET /jobs/{jobId}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "jobId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	view, err := h.jobService.GetJobStatus(r.Context(), id, shared.GetOwnerID(r.Context()))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, statusToResponse(view))
}

// GetStats handles GET /jobs/stats.
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobService.GetStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job stats")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, statsToResponse(stats))
}

// StreamJobEvents handles GET /jobs/{jobId}/events. It writes the current
// snapshot as a "status" event, then a new snapshot whenever the job
// changes, and ends after the terminal snapshot.
func (h *JobHandler) StreamJobEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	id, err := getPathUUID(r, "jobId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	ownerID := shared.GetOwnerID(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	// Subscribe before the first read so no transition falls in between.
	var notify <-chan events.JobEvent
	if h.events != nil {
		ch, cancel := h.events.Subscribe(id)
		defer cancel()
		notify = ch
	}

	view, err := h.jobService.GetJobStatus(ctx, id, ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	last := statusToResponse(view)
	if err := writeEvent(w, flusher, last); err != nil {
		log.Debug("event stream closed", "job_id", id, "error", err)
		return
	}

	ticker := time.NewTicker(h.refresh)
	defer ticker.Stop()

	for !last.Status.IsTerminal() {
		select {
		case <-ctx.Done():
			return
		case _, open := <-notify:
			if !open {
				notify = nil
			}
		case <-ticker.C:
		}

		view, err := h.jobService.GetJobStatus(ctx, id, ownerID)
		if err != nil {
			// evicted or store failure; the client falls back to polling
			log.Debug("ending event stream", "job_id", id, "error", err)
			return
		}

		next := statusToResponse(view)
		if !changed(last, next) {
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			continue
		}

		if err := writeEvent(w, flusher, next); err != nil {
			log.Debug("event stream closed", "job_id", id, "error", err)
			return
		}
		last = next
	}
}

func changed(a, b JobStatusResponse) bool {
	return a.Status != b.Status || a.Attempt != b.Attempt || a.Progress != b.Progress
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, status JobStatusResponse) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// RegisterRoutes mounts the job endpoints on r.
func (h *JobHandler) RegisterRoutes(r chi.Router) {
	r.Post("/jobs", h.CreateJob)
	r.Get("/jobs/stats", h.GetStats)
	r.Get("/jobs/{jobId}", h.GetJob)
	r.Get("/jobs/{jobId}/events", h.StreamJobEvents)
}
