package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jobins-devs/redmine-jira-integration/internal/webhooks"
)

// WebhooksController exposes the ingestion endpoints the remote trackers
// deliver to. All policy lives in the gate; this layer only maps outcomes to
// status codes: 403 for bad signatures, 400 for bad payloads, 200 otherwise.
type WebhooksController struct {
	gate *webhooks.Gate
}

func NewWebhooksController(gate *webhooks.Gate) *WebhooksController {
	return &WebhooksController{gate: gate}
}

func (w *WebhooksController) Redmine(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondBadRequest(c, "failed to read request body")
		return
	}

	result, err := w.gate.IngestRedmine(body, c.GetHeader("X-Redmine-Signature"))
	w.respond(c, result, err)
}

func (w *WebhooksController) Jira(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		respondBadRequest(c, "failed to read request body")
		return
	}

	result, err := w.gate.IngestJira(body, c.GetHeader("X-Hub-Signature"))
	w.respond(c, result, err)
}

func (w *WebhooksController) respond(c *gin.Context, result *webhooks.Result, err error) {
	switch {
	case errors.Is(err, webhooks.ErrInvalidSignature):
		respondError(c, http.StatusForbidden, "Invalid signature")
	case errors.Is(err, webhooks.ErrBadPayload):
		respondBadRequest(c, err.Error())
	case err != nil:
		respondInternalError(c, err, "webhook ingestion")
	default:
		c.JSON(http.StatusOK, SuccessResponse{Message: result.Message})
	}
}
