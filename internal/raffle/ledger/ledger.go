// Package ledger maintains the claim book: at most one claim per
// campaign and serial id, registered while the campaign is active and
// before its expiry, and never deleted afterwards.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
	"github.com/louisbranch/sortition/internal/platform/requestctx"
	"github.com/louisbranch/sortition/internal/raffle/access"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// Component is the pause-switch and journal name for the ledger.
const Component = "ledger"

// Actor identifies the caller of a ledger operation.
type Actor struct {
	ID   string
	Role access.Role
}

// Store is the ledger persistence boundary.
type Store interface {
	PutClaim(ctx context.Context, claim domain.Claim, events []event.Event) error
	PutClaims(ctx context.Context, claims []domain.Claim, events []event.Event) error
	GetClaim(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Claim, error)
	IsClaimed(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error)
	ListClaimsByClaimant(ctx context.Context, campaignID, claimantID string) ([]domain.Claim, error)
	MarkClaimRevealed(ctx context.Context, campaignID string, serialID merkle.Digest, events []event.Event) error
}

// CampaignReader resolves campaign metadata for claim-window checks.
type CampaignReader interface {
	GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error)
}

// Journal appends standalone audit events outside a state write.
type Journal interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
}

// Service orchestrates claim registration and reveal bookkeeping.
type Service struct {
	store     Store
	campaigns CampaignReader
	journal   Journal
	clock     func() time.Time
	pause     *access.Switch
}

// NewService constructs ledger use-cases.
func NewService(store Store, campaigns CampaignReader, journal Journal, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:     store,
		campaigns: campaigns,
		journal:   journal,
		clock:     clock,
		pause:     access.NewSwitch(Component),
	}
}

// RegisterClaimInput describes one claim registration.
type RegisterClaimInput struct {
	CampaignID string
	SerialID   merkle.Digest
	Payload    []byte
}

// RegisterClaim records one claim for the acting claimant. The serial id
// must be unclaimed, the campaign active, and its expiry still ahead.
func (s *Service) RegisterClaim(ctx context.Context, actor Actor, input RegisterClaimInput) (domain.Claim, error) {
	claims, err := s.RegisterClaimBatch(ctx, actor, input.CampaignID, []merkle.Digest{input.SerialID}, [][]byte{input.Payload})
	if err != nil {
		return domain.Claim{}, err
	}
	return claims[0], nil
}

// RegisterClaimBatch records several claims in one atomic write: either
// every serial in the batch is claimed or none is. Serial ids and
// payloads are parallel slices.
func (s *Service) RegisterClaimBatch(ctx context.Context, actor Actor, campaignID string, serialIDs []merkle.Digest, payloads [][]byte) ([]domain.Claim, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("ledger store is not configured")
	}
	if err := s.pause.Require(); err != nil {
		return nil, err
	}
	actor = resolveActor(ctx, actor)
	if err := requireAction(actor, access.ActionRegisterClaim); err != nil {
		return nil, err
	}
	if len(serialIDs) != len(payloads) {
		return nil, apperrors.WithMetadata(
			apperrors.CodeClaimBatchLengthMismatch,
			"serial ids and payloads must have the same length",
			map[string]string{
				"serial_ids": fmt.Sprintf("%d", len(serialIDs)),
				"payloads":   fmt.Sprintf("%d", len(payloads)),
			},
		)
	}
	if len(serialIDs) == 0 {
		return nil, apperrors.New(apperrors.CodeClaimInvalidSerial, "at least one serial id is required")
	}

	campaign, err := s.campaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	now := s.clock().UTC()
	if !campaign.Active {
		return nil, apperrors.WithMetadata(
			apperrors.CodeCampaignInactive,
			"campaign is not accepting claims",
			map[string]string{"campaign_id": campaign.ID},
		)
	}
	if campaign.Expired(now) {
		return nil, apperrors.WithMetadata(
			apperrors.CodeCampaignExpired,
			"claim window has closed",
			map[string]string{"campaign_id": campaign.ID},
		)
	}

	seen := make(map[merkle.Digest]struct{}, len(serialIDs))
	claims := make([]domain.Claim, 0, len(serialIDs))
	events := make([]event.Event, 0, len(serialIDs))
	for i, serialID := range serialIDs {
		if serialID.IsZero() {
			return nil, apperrors.New(apperrors.CodeClaimInvalidSerial, "serial id is required")
		}
		if len(payloads[i]) == 0 {
			return nil, apperrors.WithMetadata(
				apperrors.CodeClaimEmptyPayload,
				"claim payload is required",
				map[string]string{"serial_id": serialID.Hex()},
			)
		}
		if _, dup := seen[serialID]; dup {
			return nil, duplicateClaimError(campaign.ID, serialID)
		}
		seen[serialID] = struct{}{}

		claims = append(claims, domain.Claim{
			CampaignID: campaign.ID,
			SerialID:   serialID,
			ClaimantID: actor.ID,
			Payload:    payloads[i],
			ClaimedAt:  now,
		})
		payload, err := json.Marshal(event.ClaimRegisteredPayload{
			ClaimantID:  actor.ID,
			PayloadSize: len(payloads[i]),
		})
		if err != nil {
			return nil, fmt.Errorf("encode claim registered payload: %w", err)
		}
		events = append(events, event.Event{
			CampaignID:  campaign.ID,
			Timestamp:   now,
			Type:        event.TypeClaimRegistered,
			ActorType:   actorType(actor.Role),
			ActorID:     actor.ID,
			SerialID:    serialID.Hex(),
			PayloadJSON: payload,
		})
	}

	if err := s.store.PutClaims(ctx, claims, events); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, duplicateClaimError(campaign.ID, merkle.Digest{})
		}
		return nil, fmt.Errorf("persist claims: %w", err)
	}
	return claims, nil
}

// MarkRevealed flips the revealed flag on one claim. Only the settlement
// engine capability may call this; participants never reveal through the
// ledger directly.
func (s *Service) MarkRevealed(ctx context.Context, actor Actor, campaignID string, serialID merkle.Digest) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("ledger store is not configured")
	}
	if err := s.pause.Require(); err != nil {
		return err
	}
	actor = resolveActor(ctx, actor)
	if err := requireAction(actor, access.ActionMarkRevealed); err != nil {
		return err
	}

	claim, err := s.GetClaim(ctx, campaignID, serialID)
	if err != nil {
		return err
	}
	if claim.Revealed {
		return alreadyRevealedError(campaignID, serialID)
	}

	now := s.clock().UTC()
	payload, err := json.Marshal(event.ClaimRevealMarkedPayload{ClaimantID: claim.ClaimantID})
	if err != nil {
		return fmt.Errorf("encode reveal marked payload: %w", err)
	}
	marked := event.Event{
		CampaignID:  campaignID,
		Timestamp:   now,
		Type:        event.TypeClaimRevealMarked,
		ActorType:   actorType(actor.Role),
		ActorID:     actor.ID,
		SerialID:    serialID.Hex(),
		PayloadJSON: payload,
	}
	if err := s.store.MarkClaimRevealed(ctx, campaignID, serialID, []event.Event{marked}); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return claimNotFoundError(campaignID, serialID)
		case errors.Is(err, storage.ErrConflict):
			return alreadyRevealedError(campaignID, serialID)
		}
		return fmt.Errorf("persist reveal mark: %w", err)
	}
	return nil
}

// GetClaim loads one claim by campaign and serial id.
func (s *Service) GetClaim(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Claim, error) {
	if s == nil || s.store == nil {
		return domain.Claim{}, fmt.Errorf("ledger store is not configured")
	}
	claim, err := s.store.GetClaim(ctx, campaignID, serialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Claim{}, claimNotFoundError(campaignID, serialID)
		}
		return domain.Claim{}, fmt.Errorf("load claim: %w", err)
	}
	return claim, nil
}

// IsClaimed reports whether a serial id has been claimed. Unknown
// campaigns report false rather than erroring.
func (s *Service) IsClaimed(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("ledger store is not configured")
	}
	return s.store.IsClaimed(ctx, campaignID, serialID)
}

// ListClaimsByClaimant returns one claimant's claims in the order they
// were registered.
func (s *Service) ListClaimsByClaimant(ctx context.Context, campaignID, claimantID string) ([]domain.Claim, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("ledger store is not configured")
	}
	return s.store.ListClaimsByClaimant(ctx, campaignID, claimantID)
}

// Paused reports whether the ledger is halted.
func (s *Service) Paused() bool {
	return s.pause.Paused()
}

// Pause halts claim mutations. Queries stay available.
func (s *Service) Pause(ctx context.Context, actor Actor) error {
	return s.setPaused(ctx, actor, true)
}

// Unpause resumes claim mutations.
func (s *Service) Unpause(ctx context.Context, actor Actor) error {
	return s.setPaused(ctx, actor, false)
}

// PauseWithGrant validates an admin grant and pauses the ledger as the
// grant's admin identity.
func (s *Service) PauseWithGrant(ctx context.Context, grant string, cfg access.AdminGrantConfig) error {
	claims, err := access.ValidateAdminGrant(grant, cfg)
	if err != nil {
		return err
	}
	return s.Pause(ctx, Actor{ID: claims.AdminID, Role: access.RoleAdmin})
}

// UnpauseWithGrant validates an admin grant and resumes the ledger.
func (s *Service) UnpauseWithGrant(ctx context.Context, grant string, cfg access.AdminGrantConfig) error {
	claims, err := access.ValidateAdminGrant(grant, cfg)
	if err != nil {
		return err
	}
	return s.Unpause(ctx, Actor{ID: claims.AdminID, Role: access.RoleAdmin})
}

func (s *Service) setPaused(ctx context.Context, actor Actor, paused bool) error {
	action := access.ActionUnpause
	if paused {
		action = access.ActionPause
	}
	actor = resolveActor(ctx, actor)
	if err := requireAction(actor, action); err != nil {
		return err
	}

	eventType := event.TypeComponentUnpaused
	if paused {
		s.pause.Pause()
		eventType = event.TypeComponentPaused
	} else {
		s.pause.Unpause()
	}

	if s.journal == nil {
		return nil
	}
	payload, err := json.Marshal(event.ComponentPayload{Component: Component})
	if err != nil {
		return fmt.Errorf("encode component payload: %w", err)
	}
	_, err = s.journal.AppendEvent(ctx, event.Event{
		CampaignID:  Component,
		Timestamp:   s.clock().UTC(),
		Type:        eventType,
		ActorType:   event.ActorTypeAdmin,
		ActorID:     actor.ID,
		PayloadJSON: payload,
	})
	if err != nil {
		return fmt.Errorf("journal pause transition: %w", err)
	}
	return nil
}

func (s *Service) campaign(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if s.campaigns == nil {
		return domain.Campaign{}, fmt.Errorf("campaign reader is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.Campaign{}, apperrors.New(apperrors.CodeCampaignNotFound, "campaign id is required")
	}
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Campaign{}, apperrors.WithMetadata(
				apperrors.CodeCampaignNotFound,
				"campaign not found",
				map[string]string{"campaign_id": campaignID},
			)
		}
		return domain.Campaign{}, fmt.Errorf("load campaign: %w", err)
	}
	return campaign, nil
}

// resolveActor fills in the actor id from the request context when the
// caller did not pass one explicitly.
func resolveActor(ctx context.Context, actor Actor) Actor {
	if strings.TrimSpace(actor.ID) == "" {
		actor.ID = requestctx.ActorIDFromContext(ctx)
	}
	return actor
}

func requireAction(actor Actor, action access.Action) error {
	if strings.TrimSpace(actor.ID) == "" {
		return apperrors.New(apperrors.CodeUnauthorized, "actor id is required")
	}
	if !access.Can(actor.Role, action) {
		return apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"role is not allowed to perform this action",
			map[string]string{"role": string(actor.Role), "action": string(action)},
		)
	}
	return nil
}

func actorType(role access.Role) event.ActorType {
	switch role {
	case access.RoleEngine:
		return event.ActorTypeEngine
	case access.RoleAdmin:
		return event.ActorTypeAdmin
	default:
		return event.ActorTypeParticipant
	}
}

func duplicateClaimError(campaignID string, serialID merkle.Digest) error {
	metadata := map[string]string{"campaign_id": campaignID}
	if !serialID.IsZero() {
		metadata["serial_id"] = serialID.Hex()
	}
	return apperrors.WithMetadata(apperrors.CodeClaimDuplicate, "serial id is already claimed", metadata)
}

func claimNotFoundError(campaignID string, serialID merkle.Digest) error {
	return apperrors.WithMetadata(
		apperrors.CodeClaimNotFound,
		"claim not found",
		map[string]string{"campaign_id": campaignID, "serial_id": serialID.Hex()},
	)
}

func alreadyRevealedError(campaignID string, serialID merkle.Digest) error {
	return apperrors.WithMetadata(
		apperrors.CodeClaimAlreadyRevealed,
		"claim is already revealed",
		map[string]string{"campaign_id": campaignID, "serial_id": serialID.Hex()},
	)
}
