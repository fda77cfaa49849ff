package sqlite

import (
	"context"
	"crypto/sha256"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "raffle.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func testDigest(seed string) merkle.Digest {
	return merkle.Digest(sha256.Sum256([]byte(seed)))
}

func testCampaign(id string, now time.Time) domain.Campaign {
	return domain.Campaign{
		ID:            id,
		OwnerID:       "owner-1",
		CommittedRoot: testDigest("root:" + id),
		TotalLeaves:   4,
		ExpiresAt:     now.Add(24 * time.Hour),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestPutGetCampaign(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	campaign := testCampaign("camp-1", now)

	if err := store.PutCampaign(context.Background(), campaign, nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}
	if err := store.PutCampaign(context.Background(), campaign, nil); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict on duplicate campaign, got %v", err)
	}

	loaded, err := store.GetCampaign(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if loaded.CommittedRoot != campaign.CommittedRoot {
		t.Fatalf("committed root mismatch: got %s want %s", loaded.CommittedRoot.Hex(), campaign.CommittedRoot.Hex())
	}
	if !loaded.ExpiresAt.Equal(campaign.ExpiresAt) {
		t.Fatalf("expires_at mismatch: got %v want %v", loaded.ExpiresAt, campaign.ExpiresAt)
	}
	if !loaded.Active {
		t.Fatal("expected campaign active")
	}

	if _, err := store.GetCampaign(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetCampaignActive(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	campaign := testCampaign("camp-1", now)
	if err := store.PutCampaign(context.Background(), campaign, nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}

	later := now.Add(time.Hour)
	if err := store.SetCampaignActive(context.Background(), "camp-1", false, later, nil); err != nil {
		t.Fatalf("set campaign active: %v", err)
	}
	loaded, err := store.GetCampaign(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if loaded.Active {
		t.Fatal("expected campaign inactive")
	}
	if !loaded.UpdatedAt.Equal(later) {
		t.Fatalf("updated_at mismatch: got %v want %v", loaded.UpdatedAt, later)
	}
	if loaded.CommittedRoot != campaign.CommittedRoot {
		t.Fatal("committed root must not change on status flip")
	}

	if err := store.SetCampaignActive(context.Background(), "missing", false, later, nil); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutClaimsAtomicBatch(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutCampaign(context.Background(), testCampaign("camp-1", now), nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}

	first := domain.Claim{
		CampaignID: "camp-1",
		SerialID:   testDigest("serial-1"),
		ClaimantID: "alice",
		Payload:    []byte("ciphertext-1"),
		ClaimedAt:  now,
	}
	if err := store.PutClaim(context.Background(), first, nil); err != nil {
		t.Fatalf("put claim: %v", err)
	}

	// A batch containing an already-claimed serial must not persist any
	// of its members.
	batch := []domain.Claim{
		{CampaignID: "camp-1", SerialID: testDigest("serial-2"), ClaimantID: "bob", Payload: []byte("ciphertext-2"), ClaimedAt: now},
		{CampaignID: "camp-1", SerialID: testDigest("serial-1"), ClaimantID: "bob", Payload: []byte("ciphertext-dup"), ClaimedAt: now},
	}
	if err := store.PutClaims(context.Background(), batch, nil); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	claimed, err := store.IsClaimed(context.Background(), "camp-1", testDigest("serial-2"))
	if err != nil {
		t.Fatalf("is claimed: %v", err)
	}
	if claimed {
		t.Fatal("aborted batch must leave no partial writes")
	}

	loaded, err := store.GetClaim(context.Background(), "camp-1", testDigest("serial-1"))
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if loaded.ClaimantID != "alice" {
		t.Fatalf("existing claim must be untouched, got claimant %q", loaded.ClaimantID)
	}
}

func TestListClaimsByClaimantInsertionOrder(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutCampaign(context.Background(), testCampaign("camp-1", now), nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}

	serials := []string{"serial-c", "serial-a", "serial-b"}
	for _, serial := range serials {
		claim := domain.Claim{
			CampaignID: "camp-1",
			SerialID:   testDigest(serial),
			ClaimantID: "alice",
			Payload:    []byte("ciphertext"),
			ClaimedAt:  now,
		}
		if err := store.PutClaim(context.Background(), claim, nil); err != nil {
			t.Fatalf("put claim %s: %v", serial, err)
		}
	}
	other := domain.Claim{
		CampaignID: "camp-1",
		SerialID:   testDigest("serial-other"),
		ClaimantID: "bob",
		Payload:    []byte("ciphertext"),
		ClaimedAt:  now,
	}
	if err := store.PutClaim(context.Background(), other, nil); err != nil {
		t.Fatalf("put claim: %v", err)
	}

	claims, err := store.ListClaimsByClaimant(context.Background(), "camp-1", "alice")
	if err != nil {
		t.Fatalf("list claims: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}
	for i, serial := range serials {
		if claims[i].SerialID != testDigest(serial) {
			t.Fatalf("claim %d out of insertion order", i)
		}
	}
}

func TestMarkClaimRevealed(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutCampaign(context.Background(), testCampaign("camp-1", now), nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}
	claim := domain.Claim{
		CampaignID: "camp-1",
		SerialID:   testDigest("serial-1"),
		ClaimantID: "alice",
		Payload:    []byte("ciphertext"),
		ClaimedAt:  now,
	}
	if err := store.PutClaim(context.Background(), claim, nil); err != nil {
		t.Fatalf("put claim: %v", err)
	}

	if err := store.MarkClaimRevealed(context.Background(), "camp-1", testDigest("serial-1"), nil); err != nil {
		t.Fatalf("mark revealed: %v", err)
	}
	loaded, err := store.GetClaim(context.Background(), "camp-1", testDigest("serial-1"))
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if !loaded.Revealed {
		t.Fatal("expected claim revealed")
	}

	if err := store.MarkClaimRevealed(context.Background(), "camp-1", testDigest("serial-1"), nil); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict on second mark, got %v", err)
	}
	if err := store.MarkClaimRevealed(context.Background(), "camp-1", testDigest("missing"), nil); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestApplySettlement(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutCampaign(context.Background(), testCampaign("camp-1", now), nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}
	for _, serial := range []string{"serial-1", "serial-2"} {
		claim := domain.Claim{
			CampaignID: "camp-1",
			SerialID:   testDigest(serial),
			ClaimantID: "alice",
			Payload:    []byte("ciphertext"),
			ClaimedAt:  now,
		}
		if err := store.PutClaim(context.Background(), claim, nil); err != nil {
			t.Fatalf("put claim %s: %v", serial, err)
		}
	}

	settledAt := now.Add(25 * time.Hour)
	won := domain.Settlement{CampaignID: "camp-1", SerialID: testDigest("serial-1"), Won: true, SettledAt: settledAt}
	if err := store.ApplySettlement(context.Background(), won, nil); err != nil {
		t.Fatalf("apply settlement: %v", err)
	}

	claim, err := store.GetClaim(context.Background(), "camp-1", testDigest("serial-1"))
	if err != nil {
		t.Fatalf("get claim: %v", err)
	}
	if !claim.Revealed {
		t.Fatal("settlement must mark the claim revealed")
	}
	total, err := store.TotalWinners(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("total winners: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 winner, got %d", total)
	}

	// Settling the same serial again fails and leaves the tally alone.
	if err := store.ApplySettlement(context.Background(), won, nil); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict on double settle, got %v", err)
	}
	total, err = store.TotalWinners(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("total winners: %v", err)
	}
	if total != 1 {
		t.Fatalf("tally changed on rejected settlement: %d", total)
	}

	lost := domain.Settlement{CampaignID: "camp-1", SerialID: testDigest("serial-2"), Won: false, SettledAt: settledAt}
	if err := store.ApplySettlement(context.Background(), lost, nil); err != nil {
		t.Fatalf("apply losing settlement: %v", err)
	}
	total, err = store.TotalWinners(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("total winners: %v", err)
	}
	if total != 1 {
		t.Fatalf("losing settlement must not increment tally, got %d", total)
	}

	settled, err := store.IsSettled(context.Background(), "camp-1", testDigest("serial-2"))
	if err != nil {
		t.Fatalf("is settled: %v", err)
	}
	if !settled {
		t.Fatal("expected serial settled")
	}
	record, err := store.GetSettlement(context.Background(), "camp-1", testDigest("serial-2"))
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if record.Won {
		t.Fatal("expected losing settlement")
	}
	if !record.SettledAt.Equal(settledAt) {
		t.Fatalf("settled_at mismatch: got %v want %v", record.SettledAt, settledAt)
	}
}

func TestEventSequencePerCampaign(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	appended := make([]event.Event, 0, 3)
	for i, campaignID := range []string{"camp-1", "camp-1", "camp-2"} {
		evt := event.Event{
			CampaignID: campaignID,
			Timestamp:  now.Add(time.Duration(i) * time.Minute),
			Type:       event.TypeClaimRegistered,
			ActorType:  event.ActorTypeParticipant,
			ActorID:    "alice",
		}
		stored, err := store.AppendEvent(context.Background(), evt)
		if err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		appended = append(appended, stored)
	}
	if appended[0].Seq != 1 || appended[1].Seq != 2 {
		t.Fatalf("expected sequence 1,2 for camp-1, got %d,%d", appended[0].Seq, appended[1].Seq)
	}
	if appended[2].Seq != 1 {
		t.Fatalf("expected independent sequence for camp-2, got %d", appended[2].Seq)
	}

	events, err := store.ListEvents(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for i, evt := range events {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, evt.Seq)
		}
		if evt.Type != event.TypeClaimRegistered {
			t.Fatalf("event %d type %q", i, evt.Type)
		}
		if string(evt.PayloadJSON) != "{}" {
			t.Fatalf("event %d payload %q", i, evt.PayloadJSON)
		}
	}
}

func TestClaimWriteAppendsEventsAtomically(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := store.PutCampaign(context.Background(), testCampaign("camp-1", now), nil); err != nil {
		t.Fatalf("put campaign: %v", err)
	}

	claim := domain.Claim{
		CampaignID: "camp-1",
		SerialID:   testDigest("serial-1"),
		ClaimantID: "alice",
		Payload:    []byte("ciphertext"),
		ClaimedAt:  now,
	}
	evt := event.Event{
		CampaignID: "camp-1",
		Timestamp:  now,
		Type:       event.TypeClaimRegistered,
		ActorType:  event.ActorTypeParticipant,
		ActorID:    "alice",
		SerialID:   claim.SerialID.Hex(),
	}
	if err := store.PutClaim(context.Background(), claim, []event.Event{evt}); err != nil {
		t.Fatalf("put claim: %v", err)
	}

	// A rejected duplicate write must not leave its event behind.
	if err := store.PutClaim(context.Background(), claim, []event.Event{evt}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	events, err := store.ListEvents(context.Background(), "camp-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].SerialID != claim.SerialID.Hex() {
		t.Fatalf("event serial mismatch: %q", events[0].SerialID)
	}
}

func TestAppendTelemetryEvent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	evt := storage.TelemetryEvent{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Severity:  "warn",
		Component: "settlement",
		Message:   "reward hook failed",
	}
	if err := store.AppendTelemetryEvent(context.Background(), evt); err != nil {
		t.Fatalf("append telemetry event: %v", err)
	}
	if err := store.AppendTelemetryEvent(context.Background(), storage.TelemetryEvent{}); err == nil {
		t.Fatal("expected validation error")
	}
}
