// Package registry manages campaign commitment records: opening a
// campaign against a committed root and controlling its active flag.
// The committed root and expiry are immutable once the record exists.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
	"github.com/louisbranch/sortition/internal/platform/id"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// Store is the registry persistence boundary.
type Store interface {
	PutCampaign(ctx context.Context, campaign domain.Campaign, events []event.Event) error
	GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error)
	SetCampaignActive(ctx context.Context, campaignID string, active bool, updatedAt time.Time, events []event.Event) error
}

// Service orchestrates campaign commitment lifecycle behavior.
type Service struct {
	store Store
	clock func() time.Time
	newID func() (string, error)
}

// NewService constructs registry use-cases.
func NewService(store Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store: store,
		clock: clock,
		newID: newID,
	}
}

// CreateCampaign opens a campaign for the given root commitment. The
// campaign starts active and its root can never change afterwards.
func (s *Service) CreateCampaign(ctx context.Context, input domain.CreateCampaignInput) (domain.Campaign, error) {
	if s == nil || s.store == nil {
		return domain.Campaign{}, fmt.Errorf("registry store is not configured")
	}

	campaign, err := domain.CreateCampaign(input, s.clock, s.newID)
	if err != nil {
		return domain.Campaign{}, err
	}

	payload, err := json.Marshal(event.CampaignCreatedPayload{
		OwnerID:        campaign.OwnerID,
		CommittedRoot:  campaign.CommittedRoot.Hex(),
		TotalLeaves:    campaign.TotalLeaves,
		RewardAssetRef: campaign.RewardAssetRef,
		ExpiresAt:      campaign.ExpiresAt.UnixMilli(),
	})
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("encode campaign created payload: %w", err)
	}

	created := event.Event{
		CampaignID:  campaign.ID,
		Timestamp:   campaign.CreatedAt,
		Type:        event.TypeCampaignCreated,
		ActorType:   event.ActorTypeParticipant,
		ActorID:     campaign.OwnerID,
		PayloadJSON: payload,
	}
	if err := s.store.PutCampaign(ctx, campaign, []event.Event{created}); err != nil {
		return domain.Campaign{}, fmt.Errorf("persist campaign: %w", err)
	}
	return campaign, nil
}

// Get loads one campaign by id.
func (s *Service) Get(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if s == nil || s.store == nil {
		return domain.Campaign{}, fmt.Errorf("registry store is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.Campaign{}, apperrors.New(apperrors.CodeCampaignNotFound, "campaign id is required")
	}

	campaign, err := s.store.GetCampaign(ctx, campaignID)
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

// SetActive flips the campaign's active flag. Only the campaign owner
// may do this, and only strictly before expiry; a campaign that reached
// its expiry keeps whatever status it had. Setting the current status
// again is a no-op.
func (s *Service) SetActive(ctx context.Context, campaignID string, active bool, actorID string) (domain.Campaign, error) {
	if s == nil || s.store == nil {
		return domain.Campaign{}, fmt.Errorf("registry store is not configured")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.Campaign{}, apperrors.New(apperrors.CodeUnauthorized, "actor id is required")
	}

	campaign, err := s.Get(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	if campaign.OwnerID != actorID {
		return domain.Campaign{}, apperrors.WithMetadata(
			apperrors.CodeUnauthorized,
			"only the campaign owner may change campaign status",
			map[string]string{"campaign_id": campaign.ID},
		)
	}

	now := s.clock().UTC()
	if campaign.Expired(now) {
		return domain.Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignExpired,
			"campaign status is frozen after expiry",
			map[string]string{"campaign_id": campaign.ID},
		)
	}
	if campaign.Active == active {
		return campaign, nil
	}

	payload, err := json.Marshal(event.CampaignStatusChangedPayload{Active: active})
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("encode status changed payload: %w", err)
	}
	changed := event.Event{
		CampaignID:  campaign.ID,
		Timestamp:   now,
		Type:        event.TypeCampaignStatusChanged,
		ActorType:   event.ActorTypeAdmin,
		ActorID:     actorID,
		PayloadJSON: payload,
	}
	if err := s.store.SetCampaignActive(ctx, campaign.ID, active, now, []event.Event{changed}); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Campaign{}, apperrors.New(apperrors.CodeCampaignNotFound, "campaign not found")
		}
		return domain.Campaign{}, fmt.Errorf("persist campaign status: %w", err)
	}

	campaign.Active = active
	campaign.UpdatedAt = now
	return campaign, nil
}
