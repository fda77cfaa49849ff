package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// AppendTelemetryEvent persists one operational telemetry row.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	evt.Severity = strings.TrimSpace(evt.Severity)
	evt.Component = strings.TrimSpace(evt.Component)
	evt.Message = strings.TrimSpace(evt.Message)
	evt.MetadataJSON = strings.TrimSpace(evt.MetadataJSON)
	if evt.Severity == "" {
		return fmt.Errorf("telemetry severity is required")
	}
	if evt.Component == "" {
		return fmt.Errorf("telemetry component is required")
	}
	if evt.Message == "" {
		return fmt.Errorf("telemetry message is required")
	}
	if evt.Timestamp.IsZero() {
		return fmt.Errorf("telemetry timestamp is required")
	}
	if evt.MetadataJSON == "" {
		evt.MetadataJSON = "{}"
	}

	_, err := s.sqlDB.ExecContext(ctx, `
	INSERT INTO telemetry_events (
		timestamp, severity, component, message, metadata_json
	) VALUES (?, ?, ?, ?, ?)
	`,
		toMillis(evt.Timestamp),
		evt.Severity,
		evt.Component,
		evt.Message,
		evt.MetadataJSON,
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

var _ storage.TelemetryStore = (*Store)(nil)
