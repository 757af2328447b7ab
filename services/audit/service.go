package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/authgate/models"
	"github.com/upb/authgate/repositories"
	"go.uber.org/zap"
)

// AuditService writes security events to the audit repository from a pool
// of background workers. A nil *AuditService accepts and discards events.
type AuditService struct {
	auditRepo    repositories.AuditRepository
	logger       *zap.Logger
	eventChan    chan *models.AuditLog
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	dropped      atomic.Int64
	wg           sync.WaitGroup
	mu           sync.RWMutex
	started      bool
	stopped      bool
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Per-insert deadline
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		WriteTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, config Config) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	return &AuditService{
		auditRepo:    auditRepo,
		logger:       logger,
		eventChan:    make(chan *models.AuditLog, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting events and waits for the queued ones to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("audit service not running")
	}
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping audit service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// Record queues log without blocking. When the buffer is full the event is
// dropped and counted.
func (s *AuditService) Record(log *models.AuditLog) error {
	if s == nil {
		return nil
	}

	// the read lock keeps Stop from closing the channel mid-send
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return fmt.Errorf("audit service not running")
	}

	select {
	case s.eventChan <- log:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(log.Action)),
			zap.String("subject", log.Subject))
		return fmt.Errorf("audit event buffer full")
	}
}

// List returns stored events newest first
func (s *AuditService) List(ctx context.Context, filter repositories.AuditFilter, limit, offset int) ([]*models.AuditLog, error) {
	return s.auditRepo.List(ctx, filter, limit, offset)
}

// worker processes events from the channel
func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for log := range s.eventChan {
		if err := s.processEvent(log); err != nil {
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(log.Action)),
				zap.String("subject", log.Subject))
		}
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

// processEvent writes a single audit event
func (s *AuditService) processEvent(log *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Dropped:       s.dropped.Load(),
		Started:       s.started && !s.stopped,
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Dropped       int64
	Started       bool
}

// Convenience methods for logging common events. Each returns the error
// from Record; callers on the request path usually ignore it.

// LogLoginSucceeded records a successful login for subject
func (s *AuditService) LogLoginSucceeded(subject, ipAddress, requestID string) error {
	return s.Record(models.NewAuditLog(models.AuditActionLoginSucceeded, subject).
		WithRequest(requestID, ipAddress))
}

// LogLoginFailed records a rejected login. identifier is whatever the
// client sent as username or email.
func (s *AuditService) LogLoginFailed(identifier, reason, ipAddress, requestID string) error {
	return s.Record(models.NewAuditLog(models.AuditActionLoginFailed, identifier).
		WithRequest(requestID, ipAddress).
		WithDetails(map[string]string{"reason": reason}))
}

// LogLoginRateLimited records a login attempt rejected by the rate limiter
func (s *AuditService) LogLoginRateLimited(ipAddress, requestID string) error {
	return s.Record(models.NewAuditLog(models.AuditActionLoginRateLimited, "").
		WithRequest(requestID, ipAddress))
}

// LogUserCreated records a new account created by actor
func (s *AuditService) LogUserCreated(user *models.User, actor, requestID string) error {
	return s.Record(models.NewAuditLog(models.AuditActionUserCreated, user.Username).
		WithActor(actor).
		WithRequest(requestID, "").
		WithDetails(map[string]interface{}{
			"user_id": user.ID.String(),
			"roles":   user.Roles.Strings(),
		}))
}

// LogRolesChanged records a role replacement performed by actor
func (s *AuditService) LogRolesChanged(username string, roles models.RoleSet, actor, requestID string) error {
	return s.Record(models.NewAuditLog(models.AuditActionRolesChanged, username).
		WithActor(actor).
		WithRequest(requestID, "").
		WithDetails(map[string][]string{"roles": roles.Strings()}))
}

// LogEnabledChanged records an account being enabled or disabled by actor
func (s *AuditService) LogEnabledChanged(username string, enabled bool, actor, requestID string) error {
	action := models.AuditActionUserDisabled
	if enabled {
		action = models.AuditActionUserEnabled
	}
	return s.Record(models.NewAuditLog(action, username).
		WithActor(actor).
		WithRequest(requestID, ""))
}
