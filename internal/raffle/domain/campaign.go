// Package domain defines the core records of the raffle settlement system:
// campaigns, claims, and settlements, with their validation rules.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	apperrors "github.com/louisbranch/sortition/internal/platform/errors"
	"github.com/louisbranch/sortition/internal/platform/id"
)

// Campaign is the metadata record for one raffle instance. It is owned by
// the campaign registry; the ledger and settlement engine only read it.
type Campaign struct {
	ID             string
	OwnerID        string
	CommittedRoot  merkle.Digest
	TotalLeaves    int
	RewardAssetRef string
	ExpiresAt      time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Expired reports whether the claim window has closed at the given time.
// Settlement opens at exactly ExpiresAt.
func (c Campaign) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CreateCampaignInput describes the commitment needed to open a campaign.
type CreateCampaignInput struct {
	OwnerID        string
	CommittedRoot  merkle.Digest
	TotalLeaves    int
	RewardAssetRef string
	ExpiresAt      time.Time
}

// CreateCampaign validates input and creates a campaign with a generated
// ID. The committed root is immutable for the lifetime of the record.
func CreateCampaign(input CreateCampaignInput, now func() time.Time, idGenerator func() (string, error)) (Campaign, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	input.OwnerID = strings.TrimSpace(input.OwnerID)
	if input.OwnerID == "" {
		return Campaign{}, apperrors.New(apperrors.CodeUnauthorized, "campaign owner is required")
	}
	if input.CommittedRoot.IsZero() {
		return Campaign{}, apperrors.New(apperrors.CodeCampaignMissingRoot, "committed root is required")
	}
	if input.TotalLeaves <= 0 {
		return Campaign{}, apperrors.WithMetadata(
			apperrors.CodeCampaignInvalidLeaves,
			"total leaves must be positive",
			map[string]string{"total_leaves": fmt.Sprintf("%d", input.TotalLeaves)},
		)
	}

	createdAt := now().UTC()
	if !input.ExpiresAt.After(createdAt) {
		return Campaign{}, apperrors.New(apperrors.CodeCampaignInvalidExpiry, "campaign expiry must be in the future")
	}

	campaignID, err := idGenerator()
	if err != nil {
		return Campaign{}, fmt.Errorf("generate campaign id: %w", err)
	}

	return Campaign{
		ID:             campaignID,
		OwnerID:        input.OwnerID,
		CommittedRoot:  input.CommittedRoot,
		TotalLeaves:    input.TotalLeaves,
		RewardAssetRef: strings.TrimSpace(input.RewardAssetRef),
		ExpiresAt:      input.ExpiresAt.UTC(),
		Active:         true,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}, nil
}
