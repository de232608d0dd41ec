package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sweetpotato0/ai-advocate/advocate"
	errorskg "github.com/sweetpotato0/ai-advocate/errors"
	"github.com/sweetpotato0/ai-advocate/message"
	"github.com/sweetpotato0/ai-advocate/middleware/errorhandler"
	"github.com/sweetpotato0/ai-advocate/store"
)

// Greeting opens every new session.
const Greeting = "Hello, I'm your legal advocate. Tell me in your own words what happened, " +
	"and I will ask about anything I still need before looking into the law for you."

// SessionResponse is returned by POST /api/sessions.
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Greeting  string `json:"greeting"`
}

// MessageRequest is the body of POST /api/sessions/:id/messages.
type MessageRequest struct {
	Message string `json:"message" binding:"required"`
}

// HistoryResponse is returned by GET /api/sessions/:id/messages.
type HistoryResponse struct {
	SessionID string             `json:"session_id"`
	Messages  []*message.Message `json:"messages"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// createSession handles POST /api/sessions. Sessions exist implicitly once
// their first turn is stored, so this only mints an identifier.
func (s *Server) createSession(c *gin.Context) {
	ok(c, http.StatusCreated, SessionResponse{
		SessionID: uuid.NewString(),
		Greeting:  Greeting,
	})
}

// postMessage handles POST /api/sessions/:id/messages.
func (s *Server) postMessage(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		errorhandler.Abort(c, http.StatusBadRequest, errorhandler.CodeInvalidRequest, "message is required")
		return
	}

	ctx := c.Request.Context()
	records, err := s.history.History(ctx, sessionID)
	if err != nil {
		s.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		errorhandler.Abort(c, http.StatusServiceUnavailable, errorhandler.CodeUnavailable, "conversation history is unavailable")
		return
	}

	turn, err := s.coordinator.Advance(ctx, advocate.AdvanceRequest{
		SessionID: sessionID,
		History:   store.Messages(records),
		Message:   req.Message,
	})
	if err != nil {
		s.renderFailure(c, err)
		return
	}
	ok(c, http.StatusOK, turn)
}

// renderFailure maps a failed turn. Stage failures carry the apology turn
// so chat clients can show it without treating it as history.
func (s *Server) renderFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, errorskg.ErrInvalidInput):
		errorhandler.Abort(c, http.StatusBadRequest, errorhandler.CodeInvalidRequest, err.Error())
	case errors.Is(err, errorskg.ErrStageFailure):
		turn := advocate.ErrorResponse(err)
		errorhandler.AbortWithData(c, http.StatusBadGateway, errorhandler.CodeStageFailure, turn.Response, turn)
	default:
		turn := advocate.ErrorResponse(err)
		errorhandler.AbortWithData(c, http.StatusInternalServerError, errorhandler.CodeInternal, turn.Response, turn)
	}
}

// listMessages handles GET /api/sessions/:id/messages. Unknown sessions
// have an empty history.
func (s *Server) listMessages(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	records, err := s.history.History(c.Request.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to load history", "session_id", sessionID, "error", err)
		errorhandler.Abort(c, http.StatusServiceUnavailable, errorhandler.CodeUnavailable, "conversation history is unavailable")
		return
	}
	ok(c, http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: store.Messages(records)})
}

func (s *Server) health(c *gin.Context) {
	if s.pinger != nil {
		if err := s.pinger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
