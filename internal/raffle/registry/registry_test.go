package registry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

type fakeStore struct {
	campaigns map[string]domain.Campaign
	events    []event.Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{campaigns: make(map[string]domain.Campaign)}
}

func (s *fakeStore) PutCampaign(_ context.Context, campaign domain.Campaign, events []event.Event) error {
	if _, ok := s.campaigns[campaign.ID]; ok {
		return storage.ErrConflict
	}
	s.campaigns[campaign.ID] = campaign
	s.events = append(s.events, events...)
	return nil
}

func (s *fakeStore) GetCampaign(_ context.Context, campaignID string) (domain.Campaign, error) {
	campaign, ok := s.campaigns[campaignID]
	if !ok {
		return domain.Campaign{}, storage.ErrNotFound
	}
	return campaign, nil
}

func (s *fakeStore) SetCampaignActive(_ context.Context, campaignID string, active bool, updatedAt time.Time, events []event.Event) error {
	campaign, ok := s.campaigns[campaignID]
	if !ok {
		return storage.ErrNotFound
	}
	campaign.Active = active
	campaign.UpdatedAt = updatedAt
	s.campaigns[campaignID] = campaign
	s.events = append(s.events, events...)
	return nil
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func sequentialIDs(prefix string) func() (string, error) {
	counter := 0
	return func() (string, error) {
		counter++
		return fmt.Sprintf("%s-%d", prefix, counter), nil
	}
}

func testRoot(seed string) merkle.Digest {
	return merkle.Digest(sha256.Sum256([]byte(seed)))
}

func TestCreateCampaignPersistsRecordAndEvent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	service := NewService(store, fixedClock(now), sequentialIDs("camp"))

	campaign, err := service.CreateCampaign(context.Background(), domain.CreateCampaignInput{
		OwnerID:       "owner-1",
		CommittedRoot: testRoot("root"),
		TotalLeaves:   8,
		ExpiresAt:     now.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if campaign.ID != "camp-1" {
		t.Fatalf("campaign id %q", campaign.ID)
	}
	if !campaign.Active {
		t.Fatal("new campaign must start active")
	}

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	evt := store.events[0]
	if evt.Type != event.TypeCampaignCreated {
		t.Fatalf("event type %q", evt.Type)
	}
	if evt.ActorID != "owner-1" {
		t.Fatalf("event actor %q", evt.ActorID)
	}

	loaded, err := service.Get(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if loaded.CommittedRoot != testRoot("root") {
		t.Fatal("committed root mismatch")
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewService(newFakeStore(), fixedClock(now), sequentialIDs("camp"))

	_, err := service.CreateCampaign(context.Background(), domain.CreateCampaignInput{
		OwnerID:       "owner-1",
		CommittedRoot: testRoot("root"),
		TotalLeaves:   8,
		ExpiresAt:     now.Add(-time.Hour),
	})
	if !apperrors.IsCode(err, apperrors.CodeCampaignInvalidExpiry) {
		t.Fatalf("expected invalid expiry, got %v", err)
	}
}

func TestGetMissingCampaign(t *testing.T) {
	t.Parallel()

	service := NewService(newFakeStore(), nil, nil)
	_, err := service.Get(context.Background(), "missing")
	if !apperrors.IsCode(err, apperrors.CodeCampaignNotFound) {
		t.Fatalf("expected campaign not found, got %v", err)
	}
}

func TestSetActive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	service := NewService(store, fixedClock(now), sequentialIDs("camp"))

	campaign, err := service.CreateCampaign(context.Background(), domain.CreateCampaignInput{
		OwnerID:       "owner-1",
		CommittedRoot: testRoot("root"),
		TotalLeaves:   8,
		ExpiresAt:     now.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	updated, err := service.SetActive(context.Background(), campaign.ID, false, "owner-1")
	if err != nil {
		t.Fatalf("set active: %v", err)
	}
	if updated.Active {
		t.Fatal("expected campaign deactivated")
	}
	if len(store.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(store.events))
	}
	if store.events[1].Type != event.TypeCampaignStatusChanged {
		t.Fatalf("event type %q", store.events[1].Type)
	}

	// Re-applying the current status is a no-op with no event.
	if _, err := service.SetActive(context.Background(), campaign.ID, false, "owner-1"); err != nil {
		t.Fatalf("idempotent set active: %v", err)
	}
	if len(store.events) != 2 {
		t.Fatalf("no-op status change must not append events, got %d", len(store.events))
	}
}

func TestSetActiveRequiresOwner(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewService(newFakeStore(), fixedClock(now), sequentialIDs("camp"))

	campaign, err := service.CreateCampaign(context.Background(), domain.CreateCampaignInput{
		OwnerID:       "owner-1",
		CommittedRoot: testRoot("root"),
		TotalLeaves:   8,
		ExpiresAt:     now.Add(48 * time.Hour),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	_, err = service.SetActive(context.Background(), campaign.ID, false, "intruder")
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestSetActiveFrozenAfterExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	service := NewService(store, fixedClock(now), sequentialIDs("camp"))

	campaign, err := service.CreateCampaign(context.Background(), domain.CreateCampaignInput{
		OwnerID:       "owner-1",
		CommittedRoot: testRoot("root"),
		TotalLeaves:   8,
		ExpiresAt:     now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	// Status is frozen at exactly the expiry instant.
	expired := NewService(store, fixedClock(now.Add(time.Hour)), nil)
	_, err = expired.SetActive(context.Background(), campaign.ID, false, "owner-1")
	if !apperrors.IsCode(err, apperrors.CodeCampaignExpired) {
		t.Fatalf("expected campaign expired, got %v", err)
	}
}
