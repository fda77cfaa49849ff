// Package event defines the immutable audit journal records emitted by
// every state-mutating operation. The journal is the durable trail
// external observers rely on to reconstruct claim and settlement history.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of an audit event.
type Type string

// Claim lifecycle events.
const (
	// TypeClaimRegistered records a claim registered against a serial id.
	TypeClaimRegistered Type = "claim.registered"
	// TypeClaimRevealMarked records the ledger marking a claim revealed.
	TypeClaimRevealMarked Type = "claim.reveal_marked"
)

// Settlement events.
const (
	// TypeSettlementWon records a claim settled as a winner.
	TypeSettlementWon Type = "settlement.won"
	// TypeSettlementLost records a claim settled as a non-winner.
	TypeSettlementLost Type = "settlement.lost"
)

// Registry events.
const (
	// TypeCampaignCreated records a campaign commitment being opened.
	TypeCampaignCreated Type = "registry.campaign_created"
	// TypeCampaignStatusChanged records an active-flag transition.
	TypeCampaignStatusChanged Type = "registry.campaign_status_changed"
)

// Component lifecycle events.
const (
	// TypeComponentPaused records a component halt.
	TypeComponentPaused Type = "component.paused"
	// TypeComponentUnpaused records a component resume.
	TypeComponentUnpaused Type = "component.unpaused"
)

// ActorType identifies who or what triggered an event.
type ActorType string

const (
	// ActorTypeSystem indicates the event was triggered by the system.
	ActorTypeSystem ActorType = "system"
	// ActorTypeParticipant indicates the event was triggered by a participant.
	ActorTypeParticipant ActorType = "participant"
	// ActorTypeEngine indicates the event was triggered by the settlement engine.
	ActorTypeEngine ActorType = "engine"
	// ActorTypeAdmin indicates the event was triggered by an operator.
	ActorTypeAdmin ActorType = "admin"
)

// Event represents an immutable record in the audit journal.
type Event struct {
	// CampaignID is the campaign this event belongs to. Component-level
	// events (pause/unpause) use the component name instead.
	CampaignID string
	// Seq is the event sequence number within the campaign (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Type identifies the kind of event.
	Type Type
	// ActorType identifies who triggered the event.
	ActorType ActorType
	// ActorID is the caller identity when known.
	ActorID string
	// SerialID is the hex serial id for claim/settlement events.
	SerialID string
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the domain prefix of the event type (e.g., "claim",
// "settlement").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
