package event

// ClaimRegisteredPayload captures the payload for claim.registered events.
type ClaimRegisteredPayload struct {
	ClaimantID  string `json:"claimant_id"`
	PayloadSize int    `json:"payload_size"`
}

// ClaimRevealMarkedPayload captures the payload for claim.reveal_marked events.
type ClaimRevealMarkedPayload struct {
	ClaimantID string `json:"claimant_id"`
}

// SettlementPayload captures the payload for settlement.won and
// settlement.lost events.
type SettlementPayload struct {
	ClaimantID   string `json:"claimant_id"`
	Outcome      string `json:"outcome"`
	TotalWinners uint64 `json:"total_winners"`
}

// CampaignCreatedPayload captures the payload for registry.campaign_created events.
type CampaignCreatedPayload struct {
	OwnerID        string `json:"owner_id"`
	CommittedRoot  string `json:"committed_root"`
	TotalLeaves    int    `json:"total_leaves"`
	RewardAssetRef string `json:"reward_asset_ref,omitempty"`
	ExpiresAt      int64  `json:"expires_at"`
}

// CampaignStatusChangedPayload captures the payload for
// registry.campaign_status_changed events.
type CampaignStatusChangedPayload struct {
	Active bool `json:"active"`
}

// ComponentPayload captures the payload for component.paused and
// component.unpaused events.
type ComponentPayload struct {
	Component string `json:"component"`
}
