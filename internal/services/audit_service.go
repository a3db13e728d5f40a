package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campuscycle/booking-backend/internal/database"
	"github.com/campuscycle/booking-backend/internal/utils"
	"github.com/google/uuid"
)

// Audit actions
const (
	AuditBookingCreated   = "booking_created"
	AuditBookingCanceled  = "booking_canceled"
	AuditBookingReturned  = "booking_returned"
	AuditCycleReceived    = "cycle_received"
	AuditPenaltySettled   = "penalty_settled"
	AuditCycleAdded       = "cycle_added"
	AuditCycleStatus      = "cycle_status_changed"
	AuditCycleRetired     = "cycle_retired"
	AuditLocationModified = "location_modified"
)

// AuditService handles audit logging for booking, guard and penalty events
type AuditService struct {
	db database.DB
}

// NewAuditService creates a new audit service. A nil db (in-memory mode)
// turns every call into a no-op.
func NewAuditService(db database.DB) *AuditService {
	return &AuditService{
		db: db,
	}
}

// AuditEvent represents a mutation to be logged
type AuditEvent struct {
	UserID     *uuid.UUID             // Actor, nil when unauthenticated
	Action     string                 // One of the Audit* constants
	EntityType string                 // booking, cycle, user, location
	EntityID   *uuid.UUID             // Affected row, if any
	IPAddress  string                 // Client IP address
	UserAgent  string                 // Client user agent
	Details    map[string]interface{} // Stored as JSONB
}

// Enabled reports whether events are persisted
func (s *AuditService) Enabled() bool {
	return s != nil && s.db != nil
}

// Record writes one audit row, adding parsed device info to its details
func (s *AuditService) Record(ctx context.Context, event AuditEvent) error {
	if !s.Enabled() {
		return nil
	}

	details := event.Details
	if details == nil {
		details = make(map[string]interface{})
	}
	details["device_info"] = utils.ParseUserAgent(event.UserAgent)

	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err = s.db.ExecContext(ctx, query,
		nullUUID(event.UserID),
		event.Action,
		event.EntityType,
		nullUUID(event.EntityID),
		event.IPAddress,
		event.UserAgent,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// AuditEntry is one row returned by GetRecentEvents
type AuditEntry struct {
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	IPAddress  *string         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string         `json:"user_agent,omitempty" db:"user_agent"`
	Details    json.RawMessage `json:"details" db:"details"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// GetRecentEvents retrieves recent audit events for a user
func (s *AuditService) GetRecentEvents(ctx context.Context, userID uuid.UUID, limit int) ([]AuditEntry, error) {
	if !s.Enabled() {
		return []AuditEntry{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT action, entity_type, ip_address, user_agent, details, created_at
		FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryxContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}
	defer rows.Close()

	events := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		if err := rows.StructScan(&e); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	cutoffTime := time.Now().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
