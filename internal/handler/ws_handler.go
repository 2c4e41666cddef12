package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exprep-backend/internal/middleware"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stemsi/exprep-backend/internal/response"
	"github.com/stemsi/exprep-backend/internal/service"
	ws "github.com/stemsi/exprep-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams test session autosaves over a WebSocket.
type WSHandler struct {
	testService *service.TestSessionService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(testService *service.TestSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		testService: testService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// TestSessionStream godoc
// WS /ws/v1/test-sessions/:id/stream
// Upgrades to WebSocket for autosave, flagging and submit.
func (h *WSHandler) TestSessionStream(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	userID := middleware.UserID(c)
	sess, err := h.testService.Get(c.Request.Context(), id)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if sess.UserID != userID {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return
	}
	if sess.Status != model.TestStatusActive {
		response.Fail(c, http.StatusConflict, response.ErrSessionClosed)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", userID.String()).
		Str("session_id", id.String()).
		Logger()
	wsLog.Info().Msg("Client connected")

	// The request context ends when the handler returns; actions run on a
	// context tied to the connection instead.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			ws.WriteError(conn, "invalid message")
			continue
		}

		var closed bool
		switch env.Action {
		case ws.ActionAutosave:
			closed = h.handleAutosave(ctx, conn, wsLog, id, raw)
		case ws.ActionFlag:
			closed = h.handleFlag(ctx, conn, wsLog, id, raw)
		case ws.ActionSubmit:
			closed = h.handleSubmit(ctx, conn, wsLog, id)
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
		if closed {
			return
		}
	}
}

// handleAutosave merges a progress checkpoint. It reports whether the
// session is closed and the stream should end.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, id uuid.UUID, raw json.RawMessage) bool {
	var req ws.AutosaveRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "invalid autosave payload")
		return false
	}

	sess, err := h.testService.UpdateProgress(ctx, id, model.TestProgressPatch{
		Answers:              req.Answers,
		CurrentQuestionIndex: req.CurrentQuestionIndex,
		TimeRemainingSeconds: req.TimeRemainingSeconds,
	})
	return h.ack(ctx, conn, wsLog, id, sess, err)
}

func (h *WSHandler) handleFlag(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, id uuid.UUID, raw json.RawMessage) bool {
	var req ws.FlagRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		ws.WriteError(conn, "invalid flag payload")
		return false
	}

	sess, err := h.testService.UpdateProgress(ctx, id, model.TestProgressPatch{
		Flag: &model.FlagToggle{
			QuestionID:    req.QuestionID,
			QuestionIndex: req.QuestionIndex,
			Flagged:       req.Flagged,
		},
	})
	return h.ack(ctx, conn, wsLog, id, sess, err)
}

func (h *WSHandler) ack(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, id uuid.UUID, sess *model.TestSession, err error) bool {
	switch {
	case err == nil:
		ws.WriteTyped(conn, ws.SavedResponse{
			Event:                ws.EventSaved,
			AutoSaveCount:        sess.AutoSaveCount,
			AnsweredCount:        sess.AnsweredCount,
			FlaggedCount:         sess.FlaggedCount,
			TimeRemainingSeconds: sess.TimeRemainingSeconds,
		})
		return false
	case errors.Is(err, service.ErrSessionNotActive):
		return h.writeClosed(ctx, conn, id)
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, service.ErrInvalidState):
		ws.WriteError(conn, err.Error())
		return false
	default:
		wsLog.Error().Err(err).Msg("Autosave failed")
		ws.WriteError(conn, "save failed")
		return false
	}
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, id uuid.UUID) bool {
	results, err := h.testService.Submit(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrCorruptedSession) {
			ws.WriteError(conn, err.Error())
			return false
		}
		if errors.Is(err, service.ErrInvalidState) {
			return h.writeClosed(ctx, conn, id)
		}
		wsLog.Error().Err(err).Msg("Submit failed")
		ws.WriteError(conn, "grading failed")
		return false
	}

	wsLog.Info().
		Float64("score", results.Score).
		Int("correct", results.CorrectCount).
		Int("total", results.TotalQuestions).
		Msg("Test submitted and graded")

	ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, Results: results})
	return true
}

// writeClosed reports the session's final status to the client.
func (h *WSHandler) writeClosed(ctx context.Context, conn *websocket.Conn, id uuid.UUID) bool {
	status := model.TestStatus("")
	if sess, err := h.testService.Get(ctx, id); err == nil {
		status = sess.Status
	}
	ws.WriteTyped(conn, ws.ClosedResponse{Event: ws.EventClosed, Status: status})
	return true
}
