package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/jwtauth"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/models"
	"github.com/upb/authgate/services"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// InvalidCredentialsMessage is the only message a failed login ever returns
const InvalidCredentialsMessage = "Invalid username or password"

const maxLoginBodyBytes = 64 << 10

// LoginRequest is the body of POST /login
type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" validate:"required,max=255"`
	Password        string `json:"password" validate:"required,max=1024"`
}

// LoginResponse is returned on a successful login
type LoginResponse struct {
	AccessToken      string   `json:"accessToken"`
	TokenType        string   `json:"tokenType"`
	ExpiresInSeconds int64    `json:"expiresInSeconds"`
	Username         string   `json:"username"`
	Roles            []string `json:"roles"`
}

// Authenticator checks credentials
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (models.Identity, error)
}

// TokenIssuer issues access tokens
type TokenIssuer interface {
	Issue(identity models.Identity) (string, *jwtauth.Claims, error)
	ExpirationSeconds() int64
}

// LoginAuditor records login outcomes in the audit trail
type LoginAuditor interface {
	LogLoginSucceeded(subject, ipAddress, requestID string) error
	LogLoginFailed(identifier, reason, ipAddress, requestID string) error
}

// AuthHandler handles POST /login
type AuthHandler struct {
	auth    Authenticator
	tokens  TokenIssuer
	audit   LoginAuditor
	metrics *observability.AuthMetrics
	logger  *zap.Logger
}

// NewAuthHandler creates a new AuthHandler. audit and metrics may be nil.
func NewAuthHandler(auth Authenticator, tokens TokenIssuer, audit LoginAuditor, metrics *observability.AuthMetrics, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		auth:    auth,
		tokens:  tokens,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	clientIP := middleware.ClientIP(r)

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to parse login body",
			zap.String("request_id", requestID),
			zap.String("ip", clientIP),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	identity, err := h.auth.Authenticate(ctx, req.UsernameOrEmail, req.Password)
	if err != nil {
		h.loginFailed(ctx, w, req.UsernameOrEmail, clientIP, requestID, err)
		return
	}

	token, claims, err := h.tokens.Issue(identity)
	if err != nil {
		h.metrics.RecordLogin(ctx, observability.LoginFailedError)
		HandleServiceError(w, services.WrapInternal("failed to issue token", err), h.logger)
		return
	}

	h.metrics.RecordLogin(ctx, observability.LoginSucceeded)
	if h.audit != nil {
		_ = h.audit.LogLoginSucceeded(identity.Subject, clientIP, requestID)
	}
	h.logger.Info("login succeeded",
		zap.String("request_id", requestID),
		zap.String("ip", clientIP),
		zap.String("username", identity.Subject))

	_ = utils.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken:      token,
		TokenType:        "Bearer",
		ExpiresInSeconds: h.tokens.ExpirationSeconds(),
		Username:         identity.Subject,
		Roles:            claims.Roles,
	})
}

// loginFailed answers every credential problem with the same 401 so callers
// cannot tell unknown users, wrong passwords and disabled accounts apart.
func (h *AuthHandler) loginFailed(ctx context.Context, w http.ResponseWriter, login, clientIP, requestID string, err error) {
	if !services.IsUnauthorizedError(err) {
		h.metrics.RecordLogin(ctx, observability.LoginFailedError)
		HandleServiceError(w, err, h.logger)
		return
	}

	outcome := observability.LoginRejected
	if errors.Is(err, services.ErrAccountDisabled) {
		outcome = observability.LoginDisabled
	}
	h.metrics.RecordLogin(ctx, outcome)
	if h.audit != nil {
		_ = h.audit.LogLoginFailed(login, outcome, clientIP, requestID)
	}
	h.logger.Warn("login failed",
		zap.String("request_id", requestID),
		zap.String("ip", clientIP),
		zap.String("identifier", login),
		zap.String("reason", outcome))

	_ = utils.WriteUnauthorized(w, InvalidCredentialsMessage)
}
