package domain

import (
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
)

// Claim records one participant's registration against an opaque serial id.
//
// At most one claim ever exists per (campaign, serial id) pair, and a claim
// is never deleted. The payload is the ciphertext of the eventual reveal,
// stored for off-system bookkeeping only; the core never interprets it.
type Claim struct {
	CampaignID string
	SerialID   merkle.Digest
	ClaimantID string
	Payload    []byte
	ClaimedAt  time.Time
	Revealed   bool
}

// ClaimKey identifies one claim.
type ClaimKey struct {
	CampaignID string
	SerialID   merkle.Digest
}

// Key returns the claim's identity.
func (c Claim) Key() ClaimKey {
	return ClaimKey{CampaignID: c.CampaignID, SerialID: c.SerialID}
}
