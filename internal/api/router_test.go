package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/deadletter"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (s *fakeJobStore) Enqueue(ctx context.Context, job *queue.Job) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs = append(s.jobs, &copied)
	return job.ID, nil
}

func (s *fakeJobStore) Dequeue(ctx context.Context, q string, limit int) ([]*queue.Job, error) {
	return nil, nil
}
func (s *fakeJobStore) MarkCompleted(ctx context.Context, id uuid.UUID) error { return nil }
func (s *fakeJobStore) MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) error {
	return nil
}
func (s *fakeJobStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, errMsg string) error {
	return nil
}
func (s *fakeJobStore) ResetStuck(ctx context.Context, q string, olderThan time.Duration) (int, error) {
	return 0, nil
}
func (s *fakeJobStore) SweepRetention(ctx context.Context, q string, policy queue.RetentionPolicy) error {
	return nil
}
func (s *fakeJobStore) Health(ctx context.Context, q string) (queue.QueueHealth, error) {
	return queue.QueueHealth{Queue: q}, nil
}

type fakeDeadLetterStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*deadletter.Entry
}

func newFakeDeadLetterStore() *fakeDeadLetterStore {
	return &fakeDeadLetterStore{entries: make(map[uuid.UUID]*deadletter.Entry)}
}

func (s *fakeDeadLetterStore) Add(ctx context.Context, entry *deadletter.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.entries[entry.ID] = &copied
	return nil
}

func (s *fakeDeadLetterStore) Get(ctx context.Context, id uuid.UUID) (*deadletter.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, deadletter.ErrEntryNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *fakeDeadLetterStore) List(ctx context.Context, q string, offset, limit int) ([]*deadletter.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*deadletter.Entry
	for _, entry := range s.entries {
		if q == "" || entry.Queue == q {
			copied := *entry
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakeDeadLetterStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

func (s *fakeDeadLetterStore) PurgeQueue(ctx context.Context, q string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, entry := range s.entries {
		if entry.Queue == q {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeDeadLetterStore) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type serverFixture struct {
	handler     http.Handler
	jobs        *fakeJobStore
	deadLetters *fakeDeadLetterStore
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	jobs := &fakeJobStore{}
	publisher, err := queue.NewPublisher(jobs, testLogger())
	require.NoError(t, err)

	dlStore := newFakeDeadLetterStore()
	dlService, err := deadletter.NewService(dlStore, publisher, nil, nil, testLogger())
	require.NoError(t, err)

	server, err := NewServer(
		publisher,
		jobs,
		resilience.NewBreakerManager(resilience.BreakerSettings{}),
		dlService,
		prometheus.NewRegistry(),
		testLogger(),
	)
	require.NoError(t, err)

	return &serverFixture{handler: server.Router(), jobs: jobs, deadLetters: dlStore}
}

func (f *serverFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_PublishEvent(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	body := `{
		"event_type": "test-run",
		"payload": {"session_id":"s1","timestamp":"2026-08-01T10:05:00Z","passed":3,"failed":2,"total":5}
	}`
	rec := f.do(t, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["job_id"])

	require.Len(t, f.jobs.jobs, 1)
	job := f.jobs.jobs[0]
	assert.Equal(t, queue.QueueSessionEvents, job.Queue)
	assert.Equal(t, "test-run", job.EventType)
	assert.Contains(t, job.DedupKey, "s1:test-run:", "repeatable events get timestamped dedup keys")
}

func TestRouter_PublishEvent_Rejected(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/events", `{"event_type":"no-such-event","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/events", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A valid type with a missing session id is still rejected before enqueue.
	rec = f.do(t, http.MethodPost, "/api/events",
		`{"event_type":"test-run","payload":{"passed":1,"total":1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.jobs.jobs)
}

func TestRouter_QueueHealth(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/queues/analyze/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health queue.QueueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "analyze", health.Queue)
}

func TestRouter_Breakers(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/breakers", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_DeadLetters(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	entry := &deadletter.Entry{
		ID:        uuid.New(),
		JobID:     uuid.New(),
		Queue:     queue.QueueAnalyze,
		EventType: "analyze-session",
		Payload:   []byte(`{"session_id":"s1","candidate_id":"c1"}`),
		FailedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.deadLetters.Add(context.Background(), entry))

	rec := f.do(t, http.MethodGet, "/api/deadletters?queue=analyze", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Entries []*deadletter.Entry `json:"entries"`
		Page    int                 `json:"page"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Entries, 1)
	assert.Equal(t, entry.ID, listResp.Entries[0].ID)

	rec = f.do(t, http.MethodPost, "/api/deadletters/"+entry.ID.String()+"/replay", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, f.jobs.jobs, 1, "replay re-enqueues the original payload")

	rec = f.do(t, http.MethodPost, "/api/deadletters/"+uuid.NewString()+"/replay", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/deadletters/not-a-uuid/replay", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PurgeDeadLetters(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/deadletters", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "queue parameter is required")

	require.NoError(t, f.deadLetters.Add(context.Background(), &deadletter.Entry{
		ID:    uuid.New(),
		Queue: queue.QueueSessionEvents,
	}))

	rec = f.do(t, http.MethodDelete, "/api/deadletters?queue=session-events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"purged":1}`, rec.Body.String())
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	t.Parallel()
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
