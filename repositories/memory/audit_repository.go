package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
)

// AuditRepository keeps the audit trail in a slice
type AuditRepository struct {
	mu   sync.RWMutex
	logs []models.AuditLog
}

// NewAuditRepository creates an empty audit repository
func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

// Insert appends a copy of log
func (r *AuditRepository) Insert(_ context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, copyAuditLog(log))
	return nil
}

// List returns matching entries newest first
func (r *AuditRepository) List(_ context.Context, filter repositories.AuditFilter, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.RLock()
	matched := make([]models.AuditLog, 0, len(r.logs))
	for i := len(r.logs) - 1; i >= 0; i-- {
		log := &r.logs[i]
		if filter.Subject != "" && log.Subject != filter.Subject {
			continue
		}
		if filter.Action != "" && log.Action != filter.Action {
			continue
		}
		matched = append(matched, copyAuditLog(log))
	}
	r.mu.RUnlock()

	// matched is newest-inserted first, so equal timestamps keep that order
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if offset >= len(matched) {
		return []*models.AuditLog{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	out := make([]*models.AuditLog, len(matched))
	for i := range matched {
		out[i] = &matched[i]
	}
	return out, nil
}

func copyAuditLog(log *models.AuditLog) models.AuditLog {
	c := *log
	if log.Details != nil {
		c.Details = append([]byte(nil), log.Details...)
	}
	return c
}
