package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// AppendEvent appends one audit event, assigning the next campaign
// sequence number, and returns the stored record.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeEvent(evt)
	if err != nil {
		return event.Event{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin event append: %w", err)
	}
	seq, err := appendEventExec(ctx, tx, normalized)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return event.Event{}, fmt.Errorf("%w: rollback event append: %v", err, rollbackErr)
		}
		return event.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit event append: %w", err)
	}
	normalized.Seq = seq
	return normalized, nil
}

// ListEvents returns one campaign's audit journal in sequence order.
func (s *Store) ListEvents(ctx context.Context, campaignID string) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return nil, fmt.Errorf("campaign id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT campaign_id, seq, timestamp, type, actor_type, actor_id, serial_id, payload_json
FROM campaign_events
WHERE campaign_id = ?
ORDER BY seq ASC
`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var results []event.Event
	for rows.Next() {
		record, scanErr := scanEvent(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan event row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return results, nil
}

func normalizeEvent(evt event.Event) (event.Event, error) {
	evt.CampaignID = strings.TrimSpace(evt.CampaignID)
	evt.ActorID = strings.TrimSpace(evt.ActorID)
	evt.SerialID = strings.TrimSpace(evt.SerialID)
	if evt.CampaignID == "" {
		return event.Event{}, fmt.Errorf("event campaign id is required")
	}
	if !evt.Type.IsValid() {
		return event.Event{}, fmt.Errorf("event type is required")
	}
	if evt.Timestamp.IsZero() {
		return event.Event{}, fmt.Errorf("event timestamp is required")
	}
	if evt.ActorType == "" {
		evt.ActorType = event.ActorTypeSystem
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	evt.Timestamp = evt.Timestamp.UTC()
	return evt, nil
}

// appendEventExec inserts one journal row inside the caller's transaction,
// assigning the next per-campaign sequence number.
func appendEventExec(ctx context.Context, execer sqlExecer, evt event.Event) (uint64, error) {
	normalized, err := normalizeEvent(evt)
	if err != nil {
		return 0, err
	}

	_, err = execer.ExecContext(ctx, `
	INSERT INTO campaign_events (
		campaign_id, seq, timestamp, type, actor_type, actor_id, serial_id, payload_json
	) VALUES (
		?,
		(SELECT COALESCE(MAX(seq), 0) + 1 FROM campaign_events WHERE campaign_id = ?),
		?, ?, ?, ?, ?, ?
	)
	`,
		normalized.CampaignID,
		normalized.CampaignID,
		toMillis(normalized.Timestamp),
		string(normalized.Type),
		string(normalized.ActorType),
		normalized.ActorID,
		normalized.SerialID,
		string(normalized.PayloadJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}

	var seq uint64
	if err := execer.QueryRowContext(ctx, `
SELECT MAX(seq) FROM campaign_events WHERE campaign_id = ?
`, normalized.CampaignID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event sequence: %w", err)
	}
	return seq, nil
}

func appendEventsExec(ctx context.Context, execer sqlExecer, events []event.Event) error {
	for _, evt := range events {
		if _, err := appendEventExec(ctx, execer, evt); err != nil {
			return err
		}
	}
	return nil
}

func scanEvent(scan scanner) (event.Event, error) {
	var record event.Event
	var timestamp int64
	var eventType string
	var actorType string
	var payloadJSON string
	if err := scan(
		&record.CampaignID,
		&record.Seq,
		&timestamp,
		&eventType,
		&actorType,
		&record.ActorID,
		&record.SerialID,
		&payloadJSON,
	); err != nil {
		return event.Event{}, err
	}
	record.Timestamp = fromMillis(timestamp)
	record.Type = event.Type(eventType)
	record.ActorType = event.ActorType(actorType)
	record.PayloadJSON = []byte(payloadJSON)
	return record, nil
}

var _ storage.EventStore = (*Store)(nil)
