package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/services/users"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// UserService manages accounts
type UserService interface {
	Create(ctx context.Context, req users.CreateUserRequest) (*models.User, error)
	SetRoles(ctx context.Context, username string, roles ...models.Role) error
	SetEnabled(ctx context.Context, username string, enabled bool) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
}

// SetRolesRequest replaces a user's roles
type SetRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,role"`
}

// SetEnabledRequest enables or disables a user
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Roles     []string `json:"roles"`
	Enabled   bool     `json:"enabled"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// AccountAuditor records account changes in the audit trail
type AccountAuditor interface {
	LogUserCreated(user *models.User, actor, requestID string) error
	LogRolesChanged(username string, roles models.RoleSet, actor, requestID string) error
	LogEnabledChanged(username string, enabled bool, actor, requestID string) error
}

// UserHandler handles account administration under /api/admin/users
type UserHandler struct {
	users  UserService
	audit  AccountAuditor
	logger *zap.Logger
}

// NewUserHandler creates a new UserHandler. audit may be nil.
func NewUserHandler(users UserService, audit AccountAuditor, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{
		users:  users,
		audit:  audit,
		logger: logger,
	}
}

// HandleListUsers handles GET /api/admin/users?limit=&offset=
func (h *UserHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	list, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	response := make([]UserResponse, 0, len(list))
	for _, u := range list {
		response = append(response, toUserResponse(u))
	}
	_ = utils.WriteOK(w, response)
}

// HandleCreateUser handles POST /api/admin/users
func (h *UserHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())

	var req users.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	user, err := h.users.Create(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	actor := actorOf(r)
	if h.audit != nil {
		_ = h.audit.LogUserCreated(user, actor, requestID)
	}
	h.logger.Info("user created by admin",
		zap.String("request_id", requestID),
		zap.String("admin", actor),
		zap.String("username", user.Username))
	_ = utils.WriteCreated(w, toUserResponse(user))
}

// HandleSetRoles handles PUT /api/admin/users/{username}/roles
func (h *UserHandler) HandleSetRoles(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req SetRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	roles, unknown := models.ParseRoleSet(req.Roles)
	if len(unknown) > 0 {
		HandleServiceError(w, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidRole.Message, nil).
			WithDetail("roles", unknown), h.logger)
		return
	}

	list := make([]models.Role, 0, len(roles))
	for role := range roles {
		list = append(list, role)
	}
	if err := h.users.SetRoles(r.Context(), username, list...); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if h.audit != nil {
		_ = h.audit.LogRolesChanged(username, roles, actorOf(r), middleware.GetRequestIDFromContext(r.Context()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetEnabled handles PUT /api/admin/users/{username}/enabled
func (h *UserHandler) HandleSetEnabled(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.users.SetEnabled(r.Context(), username, *req.Enabled); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if h.audit != nil {
		_ = h.audit.LogEnabledChanged(username, *req.Enabled, actorOf(r), middleware.GetRequestIDFromContext(r.Context()))
	}
	w.WriteHeader(http.StatusNoContent)
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		Roles:     u.Roles.Strings(),
		Enabled:   u.Enabled,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

func actorOf(r *http.Request) string {
	return middleware.GetSecurityContext(r.Context()).Subject()
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
