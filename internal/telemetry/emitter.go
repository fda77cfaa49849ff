// Package telemetry records operational observations outside the audit
// journal. Telemetry is best-effort: failures to record never alter the
// outcome of the operation being observed.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// NewEmitterWithClock creates an emitter with a fixed clock for tests.
func NewEmitterWithClock(store storage.TelemetryStore, clock func() time.Time) *Emitter {
	if clock == nil {
		clock = time.Now
	}
	return &Emitter{store: store, clock: clock}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}

// Record emits one observation with structured metadata. Metadata that
// fails to marshal is dropped rather than blocking the record.
func (e *Emitter) Record(ctx context.Context, severity Severity, component, message string, metadata map[string]string) error {
	metadataJSON := "{}"
	if len(metadata) > 0 {
		if encoded, err := json.Marshal(metadata); err == nil {
			metadataJSON = string(encoded)
		}
	}
	return e.Emit(ctx, storage.TelemetryEvent{
		Severity:     string(severity),
		Component:    component,
		Message:      message,
		MetadataJSON: metadataJSON,
	})
}
