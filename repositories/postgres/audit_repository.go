package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, action, subject, actor, details, ip_address, request_id, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		string(log.Action),
		log.Subject,
		log.Actor,
		details,
		log.IPAddress,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted", zap.String("id", log.ID.String()), zap.String("action", string(log.Action)))
	return nil
}

// List retrieves audit entries newest first
func (r *AuditRepository) List(ctx context.Context, filter repositories.AuditFilter, limit, offset int) ([]*models.AuditLog, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		where = append(where, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}

	query := `
		SELECT id, action, subject, actor, details, ip_address, request_id, timestamp
		FROM audit_logs`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf("\n\t\tORDER BY timestamp DESC\n\t\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var (
			log     models.AuditLog
			action  string
			details []byte
		)
		if err := rows.Scan(&log.ID, &action, &log.Subject, &log.Actor, &details,
			&log.IPAddress, &log.RequestID, &log.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		log.Action = models.AuditAction(action)
		if len(details) > 0 {
			log.Details = details
		}
		logs = append(logs, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return logs, nil
}
