package domain

import (
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
)

// Outcome is the terminal result of settling one claim.
type Outcome string

const (
	// OutcomeWon indicates the revealed leaf carried a winning flag.
	OutcomeWon Outcome = "won"
	// OutcomeLost indicates the revealed leaf carried a losing flag.
	OutcomeLost Outcome = "lost"
)

// Settlement records the one-time resolution of a claim. The settled flag
// is monotonic: once true it never reverts, which is what makes settlement
// replay-safe under an adversarial caller.
type Settlement struct {
	CampaignID string
	SerialID   merkle.Digest
	Won        bool
	SettledAt  time.Time
}

// Outcome returns the outcome recorded by this settlement.
func (s Settlement) Outcome() Outcome {
	if s.Won {
		return OutcomeWon
	}
	return OutcomeLost
}

// Reveal is the transient triple disclosed at settlement time. It is used
// only to recompute a leaf digest for verification and is never persisted.
type Reveal struct {
	SerialID merkle.Digest
	Secret   merkle.Digest
	Win      bool
	Proof    []merkle.Digest
}

// LeafDigest computes the canonical leaf hash for this reveal.
func (r Reveal) LeafDigest() merkle.Digest {
	return merkle.LeafDigest(r.SerialID, r.Secret, r.Win)
}
