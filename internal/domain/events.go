package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session event type tags as they appear on published jobs.
const (
	EventSessionStarted   = "session-started"
	EventAIInteraction    = "ai-interaction"
	EventCodeChanged      = "code-changed"
	EventTestRun          = "test-run"
	EventQuestionAnswered = "question-answered"
	EventSessionComplete  = "session-complete"
)

// SessionEvent is the closed set of interview telemetry events. The sealed
// marker method keeps dispatch exhaustive: a type switch over SessionEvent
// covers every event the pipeline can ever see.
type SessionEvent interface {
	// SessionID identifies the interview session the event belongs to.
	SessionID() string

	// OccurredAt is the event's source timestamp.
	OccurredAt() time.Time

	sessionEvent()
}

// EventMeta carries the fields shared by every session event.
type EventMeta struct {
	Session   string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (m EventMeta) SessionID() string     { return m.Session }
func (m EventMeta) OccurredAt() time.Time { return m.Timestamp }

// SessionStarted opens a session and seeds the ability estimate.
type SessionStarted struct {
	EventMeta
	CandidateID       string `json:"candidate_id"`
	InitialDifficulty int    `json:"initial_difficulty"`
}

// AIInteraction records one exchange between candidate and assistant.
type AIInteraction struct {
	EventMeta
	Message        string  `json:"message"`
	ToolUsageScore float64 `json:"tool_usage_score"`
	ClarityRating  int     `json:"clarity_rating,omitempty"` // 1-5, 0 when unrated
}

// CodeChanged captures a tagged snapshot of the candidate's code.
type CodeChanged struct {
	EventMeta
	Path    string `json:"path"`
	Content string `json:"content"`
	Tag     string `json:"tag,omitempty"`
}

// TestRun reports the outcome of one test execution.
type TestRun struct {
	EventMeta
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// QuestionAnswered reports an answered interview question.
type QuestionAnswered struct {
	EventMeta
	QuestionID     string        `json:"question_id"`
	Difficulty     int           `json:"difficulty"` // 1-10
	Correct        bool          `json:"correct"`
	ResponseTime   time.Duration `json:"response_time"`
	TerminalOutput []string      `json:"terminal_output,omitempty"`
}

// SessionComplete closes a session and freezes its metrics.
type SessionComplete struct {
	EventMeta
}

func (SessionStarted) sessionEvent()   {}
func (AIInteraction) sessionEvent()    {}
func (CodeChanged) sessionEvent()      {}
func (TestRun) sessionEvent()          {}
func (QuestionAnswered) sessionEvent() {}
func (SessionComplete) sessionEvent()  {}

// DecodeSessionEvent deserializes a job payload into the concrete event for
// the given event type tag. Unknown tags are a validation failure.
func DecodeSessionEvent(eventType string, payload []byte) (SessionEvent, error) {
	var (
		ev  SessionEvent
		err error
	)
	switch eventType {
	case EventSessionStarted:
		var e SessionStarted
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventAIInteraction:
		var e AIInteraction
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventCodeChanged:
		var e CodeChanged
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventTestRun:
		var e TestRun
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventQuestionAnswered:
		var e QuestionAnswered
		err = json.Unmarshal(payload, &e)
		ev = e
	case EventSessionComplete:
		var e SessionComplete
		err = json.Unmarshal(payload, &e)
		ev = e
	default:
		return nil, NewValidationError("event_type", fmt.Sprintf("unknown session event type %q", eventType))
	}
	if err != nil {
		return nil, NewValidationError("payload", err.Error())
	}
	if ev.SessionID() == "" {
		return nil, NewValidationError("session_id", "session id cannot be empty")
	}
	return ev, nil
}
