package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/middleware"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/response"
	"github.com/stemsi/exprep-backend/internal/service"
	"github.com/stemsi/exprep-backend/internal/validator"
	"github.com/stemsi/exprep-backend/internal/workbook"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// maxExportRows caps a history export.
const maxExportRows = 1000

// TestSessionHandler handles test session endpoints.
type TestSessionHandler struct {
	testService *service.TestSessionService
	log         zerolog.Logger
}

// NewTestSessionHandler creates a new TestSessionHandler.
func NewTestSessionHandler(testService *service.TestSessionService, log zerolog.Logger) *TestSessionHandler {
	return &TestSessionHandler{
		testService: testService,
		log:         log.With().Str("component", "test_session_handler").Logger(),
	}
}

// CreateTestSession godoc
// POST /api/v1/test-sessions
// Starts a timed test over the given question ids in shuffled order.
func (h *TestSessionHandler) CreateTestSession(c *gin.Context) {
	var req model.CreateTestSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ids, err := service.ParseQuestionIDs(req.QuestionIDs)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	sess, err := h.testService.Create(c.Request.Context(), service.TestCreateInput{
		UserID:           middleware.UserID(c),
		ExamID:           req.ExamID,
		QuestionIDs:      ids,
		TimeLimitSeconds: req.TimeLimitSeconds,
		PassingScore:     req.PassingScore,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": sess})
}

// GetTestSession godoc
// GET /api/v1/test-sessions/:id
func (h *TestSessionHandler) GetTestSession(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": sess})
}

// UpdateTestProgress godoc
// PATCH /api/v1/test-sessions/:id/progress
// Auto-save checkpoint. Every accepted call increments auto_save_count.
func (h *TestSessionHandler) UpdateTestProgress(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	var patch model.TestProgressPatch
	if fields := validator.Bind(c, &patch); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.testService.UpdateProgress(c.Request.Context(), sess.ID, patch)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": updated})
}

// SaveTestAnswer godoc
// PUT /api/v1/test-sessions/:id/answers
// Upserts the answer at one position.
func (h *TestSessionHandler) SaveTestAnswer(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	updated, err := h.testService.SaveAnswer(c.Request.Context(), sess.ID, service.SaveAnswerInput{
		QuestionID:    req.QuestionID,
		QuestionIndex: req.QuestionIndex,
		Selected:      req.Selected,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": updated})
}

// SubmitTestSession godoc
// POST /api/v1/test-sessions/:id/submit
// Grades the test. Results are written once.
func (h *TestSessionHandler) SubmitTestSession(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	results, err := h.testService.Submit(c.Request.Context(), sess.ID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// GetTestResults godoc
// GET /api/v1/test-sessions/:id/results
// Available once the session was submitted or expired.
func (h *TestSessionHandler) GetTestResults(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	results, err := h.testService.GetResults(c.Request.Context(), sess.ID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// GetTestQuestions godoc
// GET /api/v1/test-sessions/:id/questions
// Returns the questions in session order without answers or explanations.
func (h *TestSessionHandler) GetTestQuestions(c *gin.Context) {
	sess, ok := h.owned(c)
	if !ok {
		return
	}

	questions, err := h.testService.GetQuestions(c.Request.Context(), sess.ID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// PauseTestSession godoc
// POST /api/v1/test-sessions/:id/pause
func (h *TestSessionHandler) PauseTestSession(c *gin.Context) {
	h.transition(c, h.testService.Pause)
}

// ResumeTestSession godoc
// POST /api/v1/test-sessions/:id/resume
func (h *TestSessionHandler) ResumeTestSession(c *gin.Context) {
	h.transition(c, h.testService.Resume)
}

// AbandonTestSession godoc
// POST /api/v1/test-sessions/:id/abandon
func (h *TestSessionHandler) AbandonTestSession(c *gin.Context) {
	h.transition(c, h.testService.Abandon)
}

// GetTestHistory godoc
// GET /api/v1/test-sessions/history?page=&limit=&exam_id=&include_details=
// Lists the caller's test sessions, most recent first.
func (h *TestSessionHandler) GetTestHistory(c *gin.Context) {
	q, ok := historyQuery(c)
	if !ok {
		return
	}

	entries, pagination, err := h.testService.GetUserHistory(c.Request.Context(), middleware.UserID(c), q)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.SuccessPage(c, gin.H{"history": entries}, pagination)
}

// ExportTestHistory godoc
// GET /api/v1/test-sessions/history/export?exam_id=
// Downloads the caller's history as an xlsx workbook.
func (h *TestSessionHandler) ExportTestHistory(c *gin.Context) {
	q, ok := historyQuery(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)
	entries, err := h.testService.CollectHistory(c.Request.Context(), userID, q.ExamID, maxExportRows)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	data, err := workbook.ExportHistory(entries)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="test-history-%s.xlsx"`, userID))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func historyQuery(c *gin.Context) (service.HistoryQuery, bool) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	details, _ := strconv.ParseBool(c.DefaultQuery("include_details", "false"))

	q := service.HistoryQuery{Page: page, Limit: limit, IncludeDetails: details}
	if raw := c.Query("exam_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
			return q, false
		}
		q.ExamID = &id
	}
	return q, true
}

type testTransition func(ctx context.Context, id uuid.UUID) (*model.TestSession, error)

func (h *TestSessionHandler) transition(c *gin.Context, fn testTransition) {
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
func (h *TestSessionHandler) owned(c *gin.Context) (*model.TestSession, bool) {
	id, ok := sessionID(c)
	if !ok {
		return nil, false
	}

	sess, err := h.testService.Get(c.Request.Context(), id)
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
