package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/metrics"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/pipeline"
)

// CreateRequestBody is the request submission payload.
type CreateRequestBody struct {
	Request   string `json:"request" binding:"required"`
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	TenantID  string `json:"tenant_id"`
	ActorID   string `json:"actor_id"`
}

// createRequestHandler handles POST /api/v1/requests. The pipeline
// result is always the body; the HTTP status reflects the error kind.
func (s *Server) createRequestHandler(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	requestID := body.RequestID
	if requestID == "" {
		requestID = c.GetString("request_id")
	}

	result := s.orchestrator.ProcessRequest(c.Request.Context(), &pipeline.Request{
		UserRequest: body.Request,
		RequestID:   requestID,
		SessionID:   body.SessionID,
		TenantID:    body.TenantID,
		ActorID:     body.ActorID,
	})
	c.JSON(statusForResult(result), result)
}

// approveRequestHandler handles POST /api/v1/requests/:id/approve.
func (s *Server) approveRequestHandler(c *gin.Context) {
	requestID := c.Param("id")
	result := s.orchestrator.ApproveAndResume(c.Request.Context(), requestID, nil)

	status := statusForResult(result)
	if result.Response != nil && result.Response.ErrorKind == string(models.ErrKindInputInvalid) {
		// No plan parked under that ID.
		status = http.StatusNotFound
	}
	c.JSON(status, result)
}

// healthHandler handles GET /api/v1/health. Safe for unauthenticated
// probes; only derived state, no internals.
func (s *Server) healthHandler(c *gin.Context) {
	health := s.orchestrator.Health()
	status := http.StatusOK
	if health.State == metrics.HealthStateUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// metricsHandler handles GET /api/v1/metrics.
func (s *Server) metricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Metrics())
}

// statusForResult maps the pipeline outcome to an HTTP status. Completed
// and approval-gated runs are 200; failures map by error kind.
func statusForResult(result *models.PipelineResult) int {
	kind := ""
	if result.Response != nil {
		kind = result.Response.ErrorKind
	}
	// Invalid input completes as a clarification at the pipeline level
	// but is still a client error over HTTP.
	if models.ErrorKind(kind) == models.ErrKindInputInvalid {
		return http.StatusBadRequest
	}
	if result.Success || result.Status == models.PipelineStatusAwaitingApproval {
		return http.StatusOK
	}
	switch models.ErrorKind(kind) {
	case models.ErrKindAssetNotFound:
		return http.StatusNotFound
	case models.ErrKindLLMUnavailable, models.ErrKindCircuitOpen:
		return http.StatusServiceUnavailable
	case models.ErrKindDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
