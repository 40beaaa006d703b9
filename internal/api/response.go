package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/cozy-creator/image-ingest/internal/app"
	"github.com/cozy-creator/image-ingest/internal/services/ingest"
	"github.com/gin-gonic/gin"
)

type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Success   bool             `json:"success"`
	Error     ingest.ErrorKind `json:"error"`
	Message   string           `json:"message"`
	Retryable bool             `json:"retryable"`
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Response{Success: true, Data: data, Message: message})
}

// respondError writes the error envelope for err. Server-side failures keep
// their details out of the body in production.
func respondError(c *gin.Context, err error) {
	kind := ingest.KindOf(err)
	status := kind.HTTPStatus()

	message := err.Error()
	var perr *ingest.PipelineError
	if errors.As(err, &perr) && perr.Message != "" {
		message = perr.Message
	}
	if status >= http.StatusInternalServerError {
		app := c.MustGet("app").(*app.App)
		if app.Config().IsProduction() {
			message = http.StatusText(status)
		}
	}

	c.JSON(status, ErrorResponse{Success: false, Error: kind, Message: message, Retryable: kind.Retryable()})
}

func validationError(message string) error {
	return &ingest.PipelineError{Kind: ingest.KindValidation, Stage: ingest.StageReceived, Message: message}
}

func parseProductID(c *gin.Context, value string) (int64, bool) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, validationError("productId must be a positive integer"))
		return 0, false
	}
	return id, true
}
