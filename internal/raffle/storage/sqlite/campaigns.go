package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// PutCampaign persists one campaign record and its audit events
// atomically. Returns storage.ErrConflict when the campaign id exists.
func (s *Store) PutCampaign(ctx context.Context, campaign domain.Campaign, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeCampaign(campaign)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin campaign write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback campaign write: %v", cause, rollbackErr)
		}
		return cause
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO campaigns (
		id, owner_id, committed_root, total_leaves, reward_asset_ref, expires_at, active, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		normalized.ID,
		normalized.OwnerID,
		normalized.CommittedRoot.Hex(),
		normalized.TotalLeaves,
		normalized.RewardAssetRef,
		toMillis(normalized.ExpiresAt),
		boolToInt(normalized.Active),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("put campaign: %w", err))
	}
	if err := appendEventsExec(ctx, tx, events); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit campaign write: %w", err)
	}
	return nil
}

// GetCampaign loads one campaign by id.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Campaign{}, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.Campaign{}, fmt.Errorf("campaign id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, owner_id, committed_root, total_leaves, reward_asset_ref, expires_at, active, created_at, updated_at
FROM campaigns
WHERE id = ?
`, campaignID)
	record, err := scanCampaign(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Campaign{}, storage.ErrNotFound
		}
		return domain.Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return record, nil
}

// SetCampaignActive flips the active flag on an existing campaign,
// appending the audit events in the same transaction. The committed root
// and expiry stay untouched.
func (s *Store) SetCampaignActive(ctx context.Context, campaignID string, active bool, updatedAt time.Time, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	if updatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin campaign status write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback campaign status write: %v", cause, rollbackErr)
		}
		return cause
	}

	result, err := tx.ExecContext(ctx, `
UPDATE campaigns
SET active = ?, updated_at = ?
WHERE id = ?
`, boolToInt(active), toMillis(updatedAt.UTC()), campaignID)
	if err != nil {
		return rollbackWith(fmt.Errorf("set campaign active: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return rollbackWith(fmt.Errorf("set campaign active rows affected: %w", err))
	}
	if affected == 0 {
		return rollbackWith(storage.ErrNotFound)
	}
	if err := appendEventsExec(ctx, tx, events); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit campaign status write: %w", err)
	}
	return nil
}

func normalizeCampaign(campaign domain.Campaign) (domain.Campaign, error) {
	campaign.ID = strings.TrimSpace(campaign.ID)
	campaign.OwnerID = strings.TrimSpace(campaign.OwnerID)
	campaign.RewardAssetRef = strings.TrimSpace(campaign.RewardAssetRef)
	if campaign.ID == "" {
		return domain.Campaign{}, fmt.Errorf("campaign id is required")
	}
	if campaign.OwnerID == "" {
		return domain.Campaign{}, fmt.Errorf("campaign owner id is required")
	}
	if campaign.CommittedRoot.IsZero() {
		return domain.Campaign{}, fmt.Errorf("campaign committed root is required")
	}
	if campaign.TotalLeaves <= 0 {
		return domain.Campaign{}, fmt.Errorf("campaign total leaves must be positive")
	}
	if campaign.ExpiresAt.IsZero() {
		return domain.Campaign{}, fmt.Errorf("campaign expires_at is required")
	}
	if campaign.CreatedAt.IsZero() {
		return domain.Campaign{}, fmt.Errorf("campaign created_at is required")
	}
	if campaign.UpdatedAt.IsZero() {
		return domain.Campaign{}, fmt.Errorf("campaign updated_at is required")
	}
	campaign.ExpiresAt = campaign.ExpiresAt.UTC()
	campaign.CreatedAt = campaign.CreatedAt.UTC()
	campaign.UpdatedAt = campaign.UpdatedAt.UTC()
	return campaign, nil
}

func scanCampaign(scan scanner) (domain.Campaign, error) {
	var record domain.Campaign
	var committedRoot string
	var expiresAt int64
	var active int
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.OwnerID,
		&committedRoot,
		&record.TotalLeaves,
		&record.RewardAssetRef,
		&expiresAt,
		&active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Campaign{}, err
	}
	root, err := merkle.DigestFromHex(committedRoot)
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("decode committed root: %w", err)
	}
	record.CommittedRoot = root
	record.ExpiresAt = fromMillis(expiresAt)
	record.Active = active != 0
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

var _ storage.CampaignStore = (*Store)(nil)
