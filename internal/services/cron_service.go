package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron      *cron.Cron
	bookings  *BookingService
	events    EventPublisher
	schedule  string
	threshold time.Duration
	logger    *logrus.Logger

	audit          *AuditService
	auditRetention time.Duration
}

// NewCronService creates a new CronService. schedule uses the six-field
// format with seconds, e.g. "0 */5 * * * *".
func NewCronService(bookings *BookingService, events EventPublisher, schedule string, threshold time.Duration, logger *logrus.Logger) *CronService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &CronService{
		cron:      cron.New(cron.WithSeconds()),
		bookings:  bookings,
		events:    events,
		schedule:  schedule,
		threshold: threshold,
		logger:    logger,
	}
}

// EnableAuditCleanup adds a nightly job deleting audit rows older than retention
func (s *CronService) EnableAuditCleanup(audit *AuditService, retention time.Duration) {
	if audit == nil || !audit.Enabled() || retention <= 0 {
		return
	}
	s.audit = audit
	s.auditRetention = retention
}

// Start registers the jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	_, err := s.cron.AddFunc(s.schedule, s.stuckBookingsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule stuck bookings job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("Scheduled: stuck booking scan")

	if s.audit != nil {
		if _, err := s.cron.AddFunc("0 30 3 * * *", s.auditCleanupJob); err != nil {
			return fmt.Errorf("failed to schedule audit cleanup job: %w", err)
		}
		s.logger.WithField("retention", s.auditRetention.String()).Info("Scheduled: audit log cleanup at 03:30")
	}

	s.cron.Start()
	s.logger.Info("Cron service started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

func (s *CronService) stuckBookingsJob() {
	if _, err := s.RunStuckScanNow(context.Background()); err != nil {
		s.logger.WithError(err).Error("[CRON] Stuck booking scan failed")
	}
}

func (s *CronService) auditCleanupJob() {
	deleted, err := s.audit.CleanupOldAuditLogs(context.Background(), s.auditRetention)
	if err != nil {
		s.logger.WithError(err).Error("[CRON] Audit log cleanup failed")
		return
	}
	s.logger.WithField("deleted", deleted).Info("[CRON] Audit log cleanup finished")
}

// RunStuckScanNow runs the stuck booking scan immediately and returns how
// many bookings were flagged
func (s *CronService) RunStuckScanNow(ctx context.Context) (int, error) {
	startTime := time.Now()

	stuck, err := s.bookings.StuckBookings(ctx, s.threshold, BookingQuery{})
	if err != nil {
		return 0, err
	}

	for _, b := range stuck {
		id, cycleID := b.ID, b.CycleID
		s.logger.WithFields(logrus.Fields{
			"booking_id": b.ID,
			"user_id":    b.UserID,
			"cycle_id":   b.CycleID,
			"start_time": b.StartTime,
		}).Warn("[CRON] Booking still pending past threshold")

		publish(ctx, s.events, s.logger, LifecycleEvent{
			Type:       EventBookingStuck,
			BookingID:  &id,
			UserID:     b.UserID,
			CycleID:    &cycleID,
			Status:     string(b.Status),
			OccurredAt: time.Now().UTC(),
		})
	}

	s.logger.WithFields(logrus.Fields{
		"stuck":    len(stuck),
		"duration": time.Since(startTime).String(),
	}).Info("[CRON] Stuck booking scan finished")
	return len(stuck), nil
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
