package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of security event
type AuditAction string

const (
	AuditActionLoginSucceeded   AuditAction = "login_succeeded"
	AuditActionLoginFailed      AuditAction = "login_failed"
	AuditActionLoginRateLimited AuditAction = "login_rate_limited"
	AuditActionUserCreated      AuditAction = "user_created"
	AuditActionRolesChanged     AuditAction = "roles_changed"
	AuditActionUserEnabled      AuditAction = "user_enabled"
	AuditActionUserDisabled     AuditAction = "user_disabled"
)

// AuditLog is one entry of the security audit trail. Subject is the account
// the event is about, or the login identifier for failed logins. Actor is
// the authenticated user that caused the event, if any.
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Action    AuditAction     `json:"action" db:"action"`
	Subject   string          `json:"subject,omitempty" db:"subject"`
	Actor     string          `json:"actor,omitempty" db:"actor"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address,omitempty" db:"ip_address"`
	RequestID string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, subject string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Subject:   subject,
		Timestamp: time.Now().UTC(),
	}
}

// WithActor sets the user that caused the event
func (a *AuditLog) WithActor(actor string) *AuditLog {
	a.Actor = actor
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	return a
}

// WithDetails sets the details. Values that do not marshal are dropped.
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}
