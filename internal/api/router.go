package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/deadletter"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/resilience"
)

const deadLetterPageSize = 50

// Server wires the operational endpoints onto a chi router.
type Server struct {
	publisher   *queue.Publisher
	store       queue.JobStore
	breakers    *resilience.BreakerManager
	deadLetters *deadletter.Service
	registry    *prometheus.Registry
	logger      *slog.Logger
}

// NewServer creates the ops server.
func NewServer(
	publisher *queue.Publisher,
	store queue.JobStore,
	breakers *resilience.BreakerManager,
	deadLetters *deadletter.Service,
	registry *prometheus.Registry,
	logger *slog.Logger,
) (*Server, error) {
	if publisher == nil || store == nil || breakers == nil || deadLetters == nil || registry == nil {
		return nil, errors.New("all server dependencies must be non-nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Server{
		publisher:   publisher,
		store:       store,
		breakers:    breakers,
		deadLetters: deadLetters,
		registry:    registry,
		logger:      logger.With("component", "ops_api"),
	}, nil
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handlePublishEvent)
		r.Get("/queues/{name}/health", s.handleQueueHealth)
		r.Get("/breakers", s.handleBreakers)

		r.Get("/deadletters", s.handleListDeadLetters)
		r.Post("/deadletters/{id}/replay", s.handleReplayDeadLetter)
		r.Delete("/deadletters", s.handlePurgeDeadLetters)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// publishEventRequest is the inbound telemetry envelope. The payload is
// validated against the closed event sum before anything is enqueued.
type publishEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Priority  int             `json:"priority,omitempty"`
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var req publishEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	event, err := domain.DecodeSessionEvent(req.EventType, req.Payload)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.publisher.Publish(r.Context(), queue.QueueSessionEvents, req.EventType, req.Payload,
		queue.PublishOptions{
			Priority: req.Priority,
			DedupKey: queue.DedupKeyAt(event.SessionID(), req.EventType, event.OccurredAt()),
		})
	if err != nil {
		s.logger.Error("failed to publish event",
			"event_type", req.EventType,
			"session_id", event.SessionID(),
			"error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	RespondWithJSON(w, http.StatusAccepted, map[string]string{"job_id": id.String()})
}

func (s *Server) handleQueueHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	health, err := s.store.Health(r.Context(), name)
	if err != nil {
		s.logger.Error("failed to read queue health", "queue", name, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to read queue health")
		return
	}
	RespondWithJSON(w, http.StatusOK, health)
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.breakers.Snapshots())
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	queueName := r.URL.Query().Get("queue")

	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			RespondWithError(w, http.StatusBadRequest, "page must be a non-negative integer")
			return
		}
		page = parsed
	}

	entries, err := s.deadLetters.List(r.Context(), queueName, page*deadLetterPageSize, deadLetterPageSize)
	if err != nil {
		s.logger.Error("failed to list dead letters", "queue", queueName, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}
	if entries == nil {
		entries = []*deadletter.Entry{}
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"page":    page,
	})
}

func (s *Server) handleReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid dead letter id")
		return
	}

	jobID, err := s.deadLetters.Replay(r.Context(), id)
	if err != nil {
		if errors.Is(err, deadletter.ErrEntryNotFound) {
			RespondWithError(w, http.StatusNotFound, "dead letter not found")
			return
		}
		s.logger.Error("failed to replay dead letter", "id", id, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to replay dead letter")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]string{"job_id": jobID.String()})
}

func (s *Server) handlePurgeDeadLetters(w http.ResponseWriter, r *http.Request) {
	queueName := r.URL.Query().Get("queue")
	if queueName == "" {
		RespondWithError(w, http.StatusBadRequest, "queue parameter is required")
		return
	}

	purged, err := s.deadLetters.Purge(r.Context(), queueName)
	if err != nil {
		s.logger.Error("failed to purge dead letters", "queue", queueName, "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to purge dead letters")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]int{"purged": purged})
}
