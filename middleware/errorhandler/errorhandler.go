// Package errorhandler renders API failures in one envelope:
//
//	{"success": false, "error": {"code": "...", "message": "..."}}
package errorhandler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared by the HTTP handlers.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeRateLimited    = "RATE_LIMITED"
	CodeStageFailure   = "STAGE_FAILURE"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

// Body is the error half of the envelope.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the response shape of every failed request. Data optionally
// carries a partial result, such as the apology turn after a stage failure.
type Envelope struct {
	Success bool `json:"success"`
	Error   Body `json:"error"`
	Data    any  `json:"data,omitempty"`
}

// Abort writes the envelope and stops the handler chain.
func Abort(c *gin.Context, status int, code, message string) {
	AbortWithData(c, status, code, message, nil)
}

// AbortWithData is Abort with a data payload.
func AbortWithData(c *gin.Context, status int, code, message string, data any) {
	c.AbortWithStatusJSON(status, Envelope{
		Error: Body{Code: code, Message: message},
		Data:  data,
	})
}

// Recovery turns a handler panic into a 500 envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("handler panic",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"panic", fmt.Sprint(recovered),
		)
		Abort(c, http.StatusInternalServerError, CodeInternal, "internal server error")
	})
}
