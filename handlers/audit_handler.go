package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// AuditLister reads the audit trail
type AuditLister interface {
	List(ctx context.Context, filter repositories.AuditFilter, limit, offset int) ([]*models.AuditLog, error)
}

// AuditLogResponse represents an audit entry in API responses
type AuditLogResponse struct {
	ID        string      `json:"id"`
	Action    string      `json:"action"`
	Subject   string      `json:"subject,omitempty"`
	Actor     string      `json:"actor,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	IPAddress string      `json:"ipAddress,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// AuditHandler serves GET /api/admin/audit
type AuditHandler struct {
	logs   AuditLister
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(logs AuditLister, logger *zap.Logger) *AuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditHandler{logs: logs, logger: logger}
}

// HandleList handles GET /api/admin/audit?subject=&action=&limit=&offset=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	q := r.URL.Query()
	filter := repositories.AuditFilter{
		Subject: q.Get("subject"),
		Action:  models.AuditAction(q.Get("action")),
	}

	logs, err := h.logs.List(r.Context(), filter, limit, offset)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to list audit logs", err), h.logger)
		return
	}

	response := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		entry := AuditLogResponse{
			ID:        log.ID.String(),
			Action:    string(log.Action),
			Subject:   log.Subject,
			Actor:     log.Actor,
			IPAddress: log.IPAddress,
			RequestID: log.RequestID,
			Timestamp: log.Timestamp.Format(time.RFC3339),
		}
		if len(log.Details) > 0 {
			entry.Details = log.Details
		}
		response = append(response, entry)
	}
	_ = utils.WriteOK(w, response)
}
