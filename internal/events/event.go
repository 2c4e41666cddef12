// Package events publishes session lifecycle events.
package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeStudyCompleted Type = "study_session.completed"
	TypeStudyAbandoned Type = "study_session.abandoned"
	TypeTestSubmitted  Type = "test_session.submitted"
	TypeTestExpired    Type = "test_session.expired"
	TypeTestAbandoned  Type = "test_session.abandoned"
)

// Event is the envelope written to the events topic.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	SessionID  uuid.UUID      `json:"session_id"`
	UserID     uuid.UUID      `json:"user_id"`
	ExamID     uuid.UUID      `json:"exam_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// New builds an event with a fresh id.
func New(t Type, sessionID, userID, examID uuid.UUID, at time.Time, data map[string]any) Event {
	return Event{
		ID:         watermill.NewUUID(),
		Type:       t,
		SessionID:  sessionID,
		UserID:     userID,
		ExamID:     examID,
		OccurredAt: at,
		Data:       data,
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
