package api

import (
	stderrors "errors"
	"net/http"

	"github.com/fleetmon/fleetmon/internal/errors"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

var statusByCode = map[string]int{
	errors.ErrNotFound:  http.StatusNotFound,
	errors.ErrConflict:  http.StatusConflict,
	errors.ErrConfig:    http.StatusBadRequest,
	errors.ErrAuth:      http.StatusUnauthorized,
	errors.ErrTransient: http.StatusServiceUnavailable,
}

func writeError(c *gin.Context, err error) {
	resp := ErrorResponse{Error: errors.ErrInternal, Message: errors.Summary(err)}

	var fe *errors.Error
	if stderrors.As(err, &fe) {
		resp.Error = fe.Code
		resp.Message = fe.Short()
		resp.Suggestion = fe.Suggestion
	}

	status, ok := statusByCode[resp.Error]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, message, suggestion string) {
	writeError(c, errors.New(errors.ErrConfig, message, suggestion))
}
