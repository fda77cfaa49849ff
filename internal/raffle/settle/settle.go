// Package settle resolves claims after campaign expiry: it verifies the
// revealed serial/secret/win triple against the campaign's committed
// root and records the one-shot settlement outcome.
package settle

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
	"github.com/louisbranch/sortition/internal/telemetry"
)

// Component is the pause-switch and journal name for the engine.
const Component = "settlement"

// Actor identifies the caller of a settlement operation.
type Actor struct {
	ID   string
	Role access.Role
}

// Store is the settlement persistence boundary.
type Store interface {
	ApplySettlement(ctx context.Context, settlement domain.Settlement, events []event.Event) error
	GetSettlement(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Settlement, error)
	IsSettled(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error)
	TotalWinners(ctx context.Context, campaignID string) (uint64, error)
}

// CampaignReader resolves campaign metadata for expiry and root checks.
type CampaignReader interface {
	GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error)
}

// ClaimReader resolves claim records for settlement preconditions.
type ClaimReader interface {
	GetClaim(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Claim, error)
}

// Journal appends standalone audit events outside a state write.
type Journal interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
}

// ProofVerifier checks a leaf digest against a committed root. The
// default verifier is the sorted-pair Merkle fold; alternative commitment
// schemes plug in here.
type ProofVerifier interface {
	Verify(root merkle.Digest, leaf merkle.Digest, proof []merkle.Digest) bool
}

// MerkleVerifier is the default sorted-pair Merkle proof verifier.
type MerkleVerifier struct{}

// Verify recomputes the root from the leaf and proof path.
func (MerkleVerifier) Verify(root merkle.Digest, leaf merkle.Digest, proof []merkle.Digest) bool {
	return merkle.Verify(root, leaf, proof)
}

// RewardDistributor delivers the reward for a winning settlement. It is
// invoked after the settlement is durably recorded; a failing distributor
// never unwinds the settlement.
type RewardDistributor interface {
	Distribute(ctx context.Context, campaign domain.Campaign, settlement domain.Settlement, claimantID string) error
}

// NoopDistributor records winners without delivering anything. It is the
// default when no reward integration is wired.
type NoopDistributor struct{}

// Distribute is a no-op.
func (NoopDistributor) Distribute(context.Context, domain.Campaign, domain.Settlement, string) error {
	return nil
}

// Service is the settlement engine.
type Service struct {
	store     Store
	campaigns CampaignReader
	claims    ClaimReader
	journal   Journal
	verifier  ProofVerifier
	rewards   RewardDistributor
	emitter   *telemetry.Emitter
	clock     func() time.Time
	pause     *access.Switch
	guard     *access.Guard
}

// Options configures optional engine collaborators.
type Options struct {
	// Verifier overrides the default Merkle proof verifier.
	Verifier ProofVerifier
	// Rewards overrides the default no-op reward distributor.
	Rewards RewardDistributor
	// Emitter records operational telemetry such as reward failures.
	Emitter *telemetry.Emitter
}

// NewService constructs the settlement engine.
func NewService(store Store, campaigns CampaignReader, claims ClaimReader, journal Journal, clock func() time.Time, opts Options) *Service {
	if clock == nil {
		clock = time.Now
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = MerkleVerifier{}
	}
	rewards := opts.Rewards
	if rewards == nil {
		rewards = NoopDistributor{}
	}
	return &Service{
		store:     store,
		campaigns: campaigns,
		claims:    claims,
		journal:   journal,
		verifier:  verifier,
		rewards:   rewards,
		emitter:   opts.Emitter,
		clock:     clock,
		pause:     access.NewSwitch(Component),
		guard:     access.NewGuard(Component),
	}
}

// RevealAndSettle resolves one claim. Preconditions are checked in a
// fixed order: the campaign must exist and be past expiry, the serial
// must be claimed and unsettled, and the revealed triple must verify
// against the committed root. The outcome is final once recorded.
func (s *Service) RevealAndSettle(ctx context.Context, actor Actor, campaignID string, reveal domain.Reveal) (domain.Settlement, error) {
	actor = resolveActor(ctx, actor)
	if err := s.enterCheck(actor); err != nil {
		return domain.Settlement{}, err
	}
	release, err := s.guard.Enter()
	if err != nil {
		return domain.Settlement{}, err
	}
	defer release()

	campaign, err := s.expiredCampaign(ctx, campaignID)
	if err != nil {
		return domain.Settlement{}, err
	}
	return s.settleOne(ctx, actor, campaign, reveal)
}

// BatchResult is the per-serial outcome of a best-effort batch settlement.
type BatchResult struct {
	SerialID   merkle.Digest
	Settlement domain.Settlement
	Err        error
}

// RevealAndSettleBatch settles several reveals best-effort: a reveal
// that fails its preconditions is skipped with its error recorded while
// the rest of the batch proceeds. Only gate failures (pause, access,
// overlap, unknown or unexpired campaign) abort the whole batch.
func (s *Service) RevealAndSettleBatch(ctx context.Context, actor Actor, campaignID string, reveals []domain.Reveal) ([]BatchResult, error) {
	actor = resolveActor(ctx, actor)
	if err := s.enterCheck(actor); err != nil {
		return nil, err
	}
	release, err := s.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	campaign, err := s.expiredCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(reveals))
	for _, reveal := range reveals {
		settlement, err := s.settleOne(ctx, actor, campaign, reveal)
		results = append(results, BatchResult{
			SerialID:   reveal.SerialID,
			Settlement: settlement,
			Err:        err,
		})
	}
	return results, nil
}

// VerifyOnly checks a reveal against the campaign's committed root
// without touching any state. Unknown campaigns report false.
func (s *Service) VerifyOnly(ctx context.Context, campaignID string, reveal domain.Reveal) (bool, error) {
	if s == nil || s.campaigns == nil {
		return false, fmt.Errorf("campaign reader is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return false, nil
	}
	campaign, err := s.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load campaign: %w", err)
	}
	return s.verifier.Verify(campaign.CommittedRoot, reveal.LeafDigest(), reveal.Proof), nil
}

// IsSettled reports whether a serial id has been settled.
func (s *Service) IsSettled(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error) {
	if s == nil || s.store == nil {
		return false, fmt.Errorf("settlement store is not configured")
	}
	return s.store.IsSettled(ctx, campaignID, serialID)
}

// GetSettlement loads one settlement record.
func (s *Service) GetSettlement(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Settlement, error) {
	if s == nil || s.store == nil {
		return domain.Settlement{}, fmt.Errorf("settlement store is not configured")
	}
	settlement, err := s.store.GetSettlement(ctx, campaignID, serialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Settlement{}, apperrors.WithMetadata(
				apperrors.CodeNotFound,
				"settlement not found",
				map[string]string{"campaign_id": campaignID, "serial_id": serialID.Hex()},
			)
		}
		return domain.Settlement{}, fmt.Errorf("load settlement: %w", err)
	}
	return settlement, nil
}

// TotalWinners returns the running winner count for one campaign.
func (s *Service) TotalWinners(ctx context.Context, campaignID string) (uint64, error) {
	if s == nil || s.store == nil {
		return 0, fmt.Errorf("settlement store is not configured")
	}
	return s.store.TotalWinners(ctx, campaignID)
}

// Paused reports whether the engine is halted.
func (s *Service) Paused() bool {
	return s.pause.Paused()
}

// Pause halts settlement mutations. Queries stay available.
func (s *Service) Pause(ctx context.Context, actor Actor) error {
	return s.setPaused(ctx, actor, true)
}

// Unpause resumes settlement mutations.
func (s *Service) Unpause(ctx context.Context, actor Actor) error {
	return s.setPaused(ctx, actor, false)
}

// PauseWithGrant validates an admin grant and pauses the engine as the
// grant's admin identity.
func (s *Service) PauseWithGrant(ctx context.Context, grant string, cfg access.AdminGrantConfig) error {
	claims, err := access.ValidateAdminGrant(grant, cfg)
	if err != nil {
		return err
	}
	return s.Pause(ctx, Actor{ID: claims.AdminID, Role: access.RoleAdmin})
}

// UnpauseWithGrant validates an admin grant and resumes the engine.
func (s *Service) UnpauseWithGrant(ctx context.Context, grant string, cfg access.AdminGrantConfig) error {
	claims, err := access.ValidateAdminGrant(grant, cfg)
	if err != nil {
		return err
	}
	return s.Unpause(ctx, Actor{ID: claims.AdminID, Role: access.RoleAdmin})
}

func (s *Service) enterCheck(actor Actor) error {
	if s == nil || s.store == nil {
		return fmt.Errorf("settlement store is not configured")
	}
	if err := s.pause.Require(); err != nil {
		return err
	}
	return requireAction(actor, access.ActionRevealAndSettle)
}

func (s *Service) expiredCampaign(ctx context.Context, campaignID string) (domain.Campaign, error) {
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
	if !campaign.Expired(s.clock().UTC()) {
		return domain.Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignNotExpired,
			"settlement opens at campaign expiry",
			map[string]string{"campaign_id": campaign.ID},
		)
	}
	return campaign, nil
}

func (s *Service) settleOne(ctx context.Context, actor Actor, campaign domain.Campaign, reveal domain.Reveal) (domain.Settlement, error) {
	if reveal.SerialID.IsZero() {
		return domain.Settlement{}, apperrors.New(apperrors.CodeClaimInvalidSerial, "serial id is required")
	}

	claim, err := s.claims.GetClaim(ctx, campaign.ID, reveal.SerialID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Settlement{}, apperrors.WithMetadata(
				apperrors.CodeClaimNotFound,
				"serial id was never claimed",
				map[string]string{"campaign_id": campaign.ID, "serial_id": reveal.SerialID.Hex()},
			)
		}
		return domain.Settlement{}, fmt.Errorf("load claim: %w", err)
	}

	settled, err := s.store.IsSettled(ctx, campaign.ID, reveal.SerialID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("check settlement: %w", err)
	}
	if settled {
		return domain.Settlement{}, apperrors.WithMetadata(
			apperrors.CodeSettlementAlreadySettled,
			"serial id is already settled",
			map[string]string{"campaign_id": campaign.ID, "serial_id": reveal.SerialID.Hex()},
		)
	}

	if !s.verifier.Verify(campaign.CommittedRoot, reveal.LeafDigest(), reveal.Proof) {
		return domain.Settlement{}, apperrors.WithMetadata(
			apperrors.CodeSettlementInvalidProof,
			"reveal does not verify against the committed root",
			map[string]string{"campaign_id": campaign.ID, "serial_id": reveal.SerialID.Hex()},
		)
	}

	now := s.clock().UTC()
	settlement := domain.Settlement{
		CampaignID: campaign.ID,
		SerialID:   reveal.SerialID,
		Won:        reveal.Win,
		SettledAt:  now,
	}

	// Callers are serialized by the guard, so read-then-write on the
	// tally is safe here.
	winners, err := s.store.TotalWinners(ctx, campaign.ID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("load winner tally: %w", err)
	}
	if settlement.Won {
		winners++
	}

	payload, err := json.Marshal(event.SettlementPayload{
		ClaimantID:   claim.ClaimantID,
		Outcome:      string(settlement.Outcome()),
		TotalWinners: winners,
	})
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("encode settlement payload: %w", err)
	}
	eventType := event.TypeSettlementLost
	if settlement.Won {
		eventType = event.TypeSettlementWon
	}
	settledEvent := event.Event{
		CampaignID:  campaign.ID,
		Timestamp:   now,
		Type:        eventType,
		ActorType:   actorType(actor.Role),
		ActorID:     actor.ID,
		SerialID:    reveal.SerialID.Hex(),
		PayloadJSON: payload,
	}

	if err := s.store.ApplySettlement(ctx, settlement, []event.Event{settledEvent}); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.Settlement{}, apperrors.WithMetadata(
				apperrors.CodeSettlementAlreadySettled,
				"serial id is already settled",
				map[string]string{"campaign_id": campaign.ID, "serial_id": reveal.SerialID.Hex()},
			)
		}
		return domain.Settlement{}, fmt.Errorf("persist settlement: %w", err)
	}

	if settlement.Won {
		s.distributeReward(ctx, campaign, settlement, claim.ClaimantID)
	}
	return settlement, nil
}

// distributeReward runs the reward hook after the settlement is durable.
// Failures are recorded as telemetry; the settlement stands either way.
func (s *Service) distributeReward(ctx context.Context, campaign domain.Campaign, settlement domain.Settlement, claimantID string) {
	if s.rewards == nil {
		return
	}
	if err := s.rewards.Distribute(ctx, campaign, settlement, claimantID); err != nil {
		_ = s.emitter.Record(ctx, telemetry.SeverityError, Component, "reward distribution failed", map[string]string{
			"campaign_id": campaign.ID,
			"serial_id":   settlement.SerialID.Hex(),
			"claimant_id": claimantID,
			"error":       err.Error(),
		})
	}
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
