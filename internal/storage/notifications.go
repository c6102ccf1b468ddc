package storage

import (
	"context"

	"github.com/fieldops/visitsync/internal/model"
	otelx "github.com/fieldops/visitsync/libs/otel"
)

// InsertNotification appends an inbound change signal. The current trace
// context is persisted with the row so the reconciliation run that picks it
// up continues the webhook's trace.
func (s *Store) InsertNotification(ctx context.Context, n model.ChangeNotification) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO change_notifications (subscription_id, resource_id, change_type, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5)
	`, n.SubscriptionID, n.ResourceID, string(n.ChangeType), traceparent, tracestate)
	return err
}

// ClaimNotifications atomically claims up to limit unprocessed rows, oldest
// first, by setting processed_at as part of selection. A row claimed here
// can never be claimed by a concurrent run: the inner select locks with
// SKIP LOCKED and the predicate requires processed_at IS NULL.
//
// A non-empty scheduleIDs narrows the claim to notifications already linked
// to those appointments or whose resource matches their calendar events.
func (s *Store) ClaimNotifications(ctx context.Context, limit int, scheduleIDs []string) ([]model.ChangeNotification, error) {
	var filter any
	if len(scheduleIDs) > 0 {
		filter = scheduleIDs
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE change_notifications n
		SET processed_at = now()
		FROM (
			SELECT id FROM change_notifications
			WHERE processed_at IS NULL
			  AND ($2::text[] IS NULL
			       OR schedule_id = ANY($2)
			       OR resource_id IN (SELECT calendar_event_id FROM appointments WHERE id = ANY($2)))
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) claimable
		WHERE n.id = claimable.id
		RETURNING n.id, n.subscription_id, n.resource_id, n.change_type,
		          COALESCE(n.schedule_id, ''), COALESCE(n.traceparent, ''), COALESCE(n.tracestate, ''), n.created_at
	`, limit, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []model.ChangeNotification
	for rows.Next() {
		var n model.ChangeNotification
		var changeType string
		if err := rows.Scan(&n.ID, &n.SubscriptionID, &n.ResourceID, &changeType,
			&n.ScheduleID, &n.Traceparent, &n.Tracestate, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ChangeType = model.ChangeType(changeType)
		claimed = append(claimed, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return claimed, nil
}

// MarkOutcome records the terminal processing result for a claimed row.
func (s *Store) MarkOutcome(ctx context.Context, id int64, scheduleID string, result model.ProcessResult, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE change_notifications
		SET processed_result = $2,
		    error_message = NULLIF($3, ''),
		    schedule_id = COALESCE(NULLIF($4, ''), schedule_id)
		WHERE id = $1
	`, id, string(result), errMsg, scheduleID)
	return err
}
