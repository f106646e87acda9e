package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/genie"
	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
)

func (s *Server) handleHealth(c *gin.Context) {
	s.ok(c, http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"agents": len(s.supervisor.Registry().Enabled()),
	})
}

func (s *Server) handleInvoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.fail(c, http.StatusBadRequest, "query is required", nil)
		return
	}

	state := s.supervisor.Invoke(c.Request.Context(), req.Query, invokeOptions(requestIDOf(c), req)...)
	s.ok(c, http.StatusOK, state)
}

func invokeOptions(requestID string, req InvokeRequest) []supervisor.InvokeOption {
	metadata := map[string]any{requestIDKey: requestID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	opts := []supervisor.InvokeOption{supervisor.WithMetadata(metadata)}
	if req.Agent != "" {
		opts = append(opts, supervisor.WithAgent(req.Agent))
	}
	return opts
}

func (s *Server) handleAgents(c *gin.Context) {
	reg := s.supervisor.Registry()
	agents := reg.Agents()
	out := make([]AgentInfo, 0, len(agents))
	for _, agent := range agents {
		out = append(out, AgentInfo{
			Name:        agent.Name,
			Type:        agent.Type,
			Description: agent.Description,
			Keywords:    agent.Keywords,
			Enabled:     agent.Enabled,
			Default:     agent.Name == reg.Default(),
		})
	}
	s.ok(c, http.StatusOK, out)
}

func (s *Server) handleGenieQuery(c *gin.Context) {
	space := c.Param("space")
	var req GenieQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid request", err)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.fail(c, http.StatusBadRequest, "question is required", nil)
		return
	}
	if req.MaxRows < 0 || req.TimeoutSeconds < 0 {
		s.fail(c, http.StatusBadRequest, "max_rows and timeout_seconds must not be negative", nil)
		return
	}

	ctx := c.Request.Context()
	var (
		msg *genie.Message
		err error
	)
	if req.ConversationID != "" {
		msg, err = s.genie.ContinueConversation(ctx, space, req.ConversationID, req.Question)
	} else {
		msg, err = s.genie.StartConversation(ctx, space, req.Question)
	}
	if err == nil && !msg.HasResult() {
		msg, err = s.genie.WaitForCompletion(ctx, space, msg.ConversationID, msg.ID, time.Duration(req.TimeoutSeconds)*time.Second)
	}
	if err != nil {
		s.fail(c, genieStatus(err), "genie query failed", err)
		return
	}

	maxRows := req.MaxRows
	if maxRows == 0 {
		maxRows = s.cfg.GenieMaxRows
	}
	result := genie.Extract(msg)
	s.ok(c, http.StatusOK, GenieQueryResponse{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Status:         msg.Status,
		Result:         result,
		Table:          genie.FormatMarkdownTable(result, maxRows),
	})
}

// genieStatus maps client failures onto gateway-style statuses.
func genieStatus(err error) int {
	var apiErr *genie.APIError
	switch {
	case errors.Is(err, genie.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, genie.ErrQueryFailed):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	}
	switch dbxerrors.GetErrorType(err) {
	case dbxerrors.ErrorTypeTransient, dbxerrors.ErrorTypeDegraded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) ok(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{Success: true, RequestID: requestIDOf(c), Data: data})
}

func (s *Server) fail(c *gin.Context, status int, message string, err error) {
	logger := logging.FromContext(c.Request.Context(), s.logger)
	text := message
	if err != nil {
		text = fmt.Sprintf("%s: %v", message, err)
		_ = c.Error(err)
		logger.Warn("HTTP %d - %s", status, text)
	} else {
		logger.Debug("HTTP %d - %s", status, text)
	}
	c.AbortWithStatusJSON(status, APIResponse{Success: false, RequestID: requestIDOf(c), Error: text})
}
