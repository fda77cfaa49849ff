// Package storage defines the persistence boundary for the raffle core.
//
// Campaign records are owned by the registry; claim records by the claim
// ledger; settlement records and winner tallies by the settlement engine.
// Cross-component writes happen only through the transactional operations
// below, never by direct table access, and every mutating operation
// appends its audit events in the same transaction as the state change.
package storage

import (
	"context"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrConflict indicates a write conflicted with an existing uniqueness
// constraint. The ledger maps this onto the duplicate-claim failure mode.
var ErrConflict = apperrors.New(apperrors.CodeConflict, "record already exists")

// CampaignStore owns campaign metadata records. The committed root is
// immutable once stored; only the active flag and updated_at may change.
type CampaignStore interface {
	PutCampaign(ctx context.Context, campaign domain.Campaign, events []event.Event) error
	GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error)
	SetCampaignActive(ctx context.Context, campaignID string, active bool, updatedAt time.Time, events []event.Event) error
}

// ClaimStore owns claim records for the claim ledger.
type ClaimStore interface {
	// PutClaim records one claim. Returns ErrConflict when the
	// (campaign, serial) pair is already claimed.
	PutClaim(ctx context.Context, claim domain.Claim, events []event.Event) error
	// PutClaims records a batch atomically: any conflict aborts the
	// whole batch with no partial writes.
	PutClaims(ctx context.Context, claims []domain.Claim, events []event.Event) error
	GetClaim(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Claim, error)
	IsClaimed(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error)
	// ListClaimsByClaimant returns one claimant's claims in insertion order.
	ListClaimsByClaimant(ctx context.Context, campaignID, claimantID string) ([]domain.Claim, error)
	// MarkClaimRevealed flips the revealed flag on an existing claim.
	// Returns ErrNotFound for a missing claim and ErrConflict when the
	// claim was already revealed.
	MarkClaimRevealed(ctx context.Context, campaignID string, serialID merkle.Digest, events []event.Event) error
}

// SettlementStore owns settlement records and the per-campaign winner tally.
type SettlementStore interface {
	// ApplySettlement atomically records the settlement, flips the
	// claim's revealed flag, increments the winner tally when the
	// settlement won, and appends the audit events. Returns ErrConflict
	// when the serial is already settled.
	ApplySettlement(ctx context.Context, settlement domain.Settlement, events []event.Event) error
	GetSettlement(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Settlement, error)
	IsSettled(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error)
	TotalWinners(ctx context.Context, campaignID string) (uint64, error)
}

// EventStore appends to and reads from the audit journal.
type EventStore interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	ListEvents(ctx context.Context, campaignID string) ([]event.Event, error)
}

// TelemetryEvent records one operational observation (e.g. a failed
// reward hook) outside the audit journal.
type TelemetryEvent struct {
	Timestamp    time.Time
	Severity     string
	Component    string
	Message      string
	MetadataJSON string
}

// TelemetryStore persists operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
