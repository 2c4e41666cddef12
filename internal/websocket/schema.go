package websocket

import (
	"github.com/google/uuid"
	"github.com/stemsi/exprep-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionFlag     Action = "flag"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AutosaveRequest checkpoints progress. Answers are merged per position;
// an empty selection clears a position.
type AutosaveRequest struct {
	Action               Action                `json:"action"`
	Answers              model.PositionAnswers `json:"answers"`
	CurrentQuestionIndex *int                  `json:"current_question_index"`
	TimeRemainingSeconds *int                  `json:"time_remaining_seconds"`
}

// FlagRequest marks or unmarks one position for review.
type FlagRequest struct {
	Action        Action     `json:"action"`
	QuestionIndex int        `json:"question_index"`
	QuestionID    *uuid.UUID `json:"question_id"`
	Flagged       bool       `json:"flagged"`
}

// SubmitRequest is sent by the client to finish and grade the test.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventGraded Event = "graded"
	EventClosed Event = "closed"
	EventPong   Event = "pong"
)

// SavedResponse acknowledges an autosave or flag.
type SavedResponse struct {
	Event                Event `json:"event"`
	AutoSaveCount        int   `json:"auto_save_count"`
	AnsweredCount        int   `json:"answered_count"`
	FlaggedCount         int   `json:"flagged_count"`
	TimeRemainingSeconds int   `json:"time_remaining_seconds"`
}

// GradedResponse carries the results after a submit.
type GradedResponse struct {
	Event   Event              `json:"event"`
	Results *model.TestResults `json:"results"`
}

// ClosedResponse tells the client the session no longer accepts progress.
type ClosedResponse struct {
	Event  Event            `json:"event"`
	Status model.TestStatus `json:"status"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
