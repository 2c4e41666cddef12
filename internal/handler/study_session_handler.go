package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/middleware"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/response"
	"github.com/stemsi/exprep-backend/internal/service"
	"github.com/stemsi/exprep-backend/internal/validator"
)

// StudySessionHandler handles study session endpoints.
type StudySessionHandler struct {
	studyService *service.StudySessionService
	log          zerolog.Logger
}

// NewStudySessionHandler creates a new StudySessionHandler.
func NewStudySessionHandler(studyService *service.StudySessionService, log zerolog.Logger) *StudySessionHandler {
	return &StudySessionHandler{
		studyService: studyService,
		log:          log.With().Str("component", "study_session_handler").Logger(),
	}
}

// CreateStudySession godoc
// POST /api/v1/study-sessions
// Starts a study session over the given question ids.
func (h *StudySessionHandler) CreateStudySession(c *gin.Context) {
	var req model.CreateStudySessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ids, err := service.ParseQuestionIDs(req.QuestionIDs)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	sess, err := h.studyService.Create(c.Request.Context(), service.StudyCreateInput{
		UserID:       middleware.UserID(c),
		ExamID:       req.ExamID,
		Mode:         req.Mode,
		QuestionIDs:  ids,
		MaxQuestions: req.MaxQuestions,
		Settings:     req.Settings,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// GetActiveStudySession godoc
// GET /api/v1/study-sessions/active?exam_id=
// Returns the caller's most recently touched open session, or null.
func (h *StudySessionHandler) GetActiveStudySession(c *gin.Context) {
	var examID *uuid.UUID
	if raw := c.Query("exam_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		examID = &id
	}

	sess, err := h.studyService.GetActive(c.Request.Context(), middleware.UserID(c), examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// GetStudySession godoc
// GET /api/v1/study-sessions/:id
func (h *StudySessionHandler) GetStudySession(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// UpdateStudyProgress godoc
// PATCH /api/v1/study-sessions/:id/progress
// Applies a partial progress update. Answers are merged.
func (h *StudySessionHandler) UpdateStudyProgress(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	var patch model.StudyProgressPatch
	if fields := validator.Bind(c, &patch); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.studyService.UpdateProgress(c.Request.Context(), sess.ID, patch)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": updated})
}

// RecordStudyAnswer godoc
// POST /api/v1/study-sessions/:id/answers
// Grades one answer and returns immediate feedback.
func (h *StudySessionHandler) RecordStudyAnswer(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	var req model.StudyAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	feedback, err := h.studyService.RecordAnswer(c.Request.Context(), sess.ID, service.StudyAnswerInput{
		QuestionID: req.QuestionID,
		Selected:   req.Selected,
		TimeSpent:  req.TimeSpent,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"feedback": feedback})
}

// GetStudyQuestions godoc
// GET /api/v1/study-sessions/:id/questions
// Returns the session's questions in order, with answers and explanations.
func (h *StudySessionHandler) GetStudyQuestions(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	questions, err := h.studyService.GetQuestions(c.Request.Context(), sess.ID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// CompleteStudySession godoc
// POST /api/v1/study-sessions/:id/complete
func (h *StudySessionHandler) CompleteStudySession(c *gin.Context) {
	h.transition(c, h.studyService.Complete)
}

// AbandonStudySession godoc
// POST /api/v1/study-sessions/:id/abandon
func (h *StudySessionHandler) AbandonStudySession(c *gin.Context) {
	h.transition(c, h.studyService.Abandon)
}

// PauseStudySession godoc
// POST /api/v1/study-sessions/:id/pause
func (h *StudySessionHandler) PauseStudySession(c *gin.Context) {
	h.transition(c, h.studyService.Pause)
}

// ResumeStudySession godoc
// POST /api/v1/study-sessions/:id/resume
// Fails with INVALID_STATE once the session sat idle for 24 hours.
func (h *StudySessionHandler) ResumeStudySession(c *gin.Context) {
	h.transition(c, h.studyService.Resume)
}

type studyTransition func(ctx context.Context, id uuid.UUID) (*model.StudySession, error)

func (h *StudySessionHandler) transition(c *gin.Context, fn studyTransition) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	updated, err := fn(c.Request.Context(), sess.ID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": updated})
}

// owned loads the :id session and checks it belongs to the caller.
func (h *StudySessionHandler) owned(c *gin.Context) (*model.StudySession, bool) {
	id, ok := sessionID(c)
	if !ok {
		return nil, false
	}

	sess, err := h.studyService.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return nil, false
	}
	if sess.UserID != middleware.UserID(c) {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return nil, false
	}
	return sess, true
}
