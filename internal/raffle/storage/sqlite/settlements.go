package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/sortition/internal/merkle"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/event"
	"github.com/louisbranch/sortition/internal/raffle/storage"
)

// ApplySettlement atomically records one settlement: the settlement row,
// the claim's revealed flag, the winner tally when the claim won, and the
// audit events all land in one transaction or not at all. Returns
// storage.ErrConflict when the serial is already settled.
func (s *Store) ApplySettlement(ctx context.Context, settlement domain.Settlement, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeSettlement(settlement)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settlement write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback settlement write: %v", cause, rollbackErr)
		}
		return cause
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO settlements (
		campaign_id, serial_id, won, settled_at
	) VALUES (?, ?, ?, ?)
	`,
		normalized.CampaignID,
		normalized.SerialID.Hex(),
		boolToInt(normalized.Won),
		toMillis(normalized.SettledAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("put settlement: %w", err))
	}

	// Settlement implies reveal; a claim already marked revealed stays so.
	result, err := tx.ExecContext(ctx, `
UPDATE claims
SET revealed = 1
WHERE campaign_id = ? AND serial_id = ?
`, normalized.CampaignID, normalized.SerialID.Hex())
	if err != nil {
		return rollbackWith(fmt.Errorf("mark settled claim revealed: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return rollbackWith(fmt.Errorf("mark settled claim revealed rows affected: %w", err))
	}
	if affected == 0 {
		return rollbackWith(storage.ErrNotFound)
	}

	if normalized.Won {
		_, err := tx.ExecContext(ctx, `
	INSERT INTO winner_tallies (campaign_id, total_winners)
	VALUES (?, 1)
	ON CONFLICT(campaign_id) DO UPDATE SET
		total_winners = total_winners + 1
	`, normalized.CampaignID)
		if err != nil {
			return rollbackWith(fmt.Errorf("increment winner tally: %w", err))
		}
	}

	if err := appendEventsExec(ctx, tx, events); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement write: %w", err)
	}
	return nil
}

// GetSettlement loads one settlement by campaign and serial id.
func (s *Store) GetSettlement(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return domain.Settlement{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Settlement{}, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.Settlement{}, fmt.Errorf("campaign id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT campaign_id, serial_id, won, settled_at
FROM settlements
WHERE campaign_id = ? AND serial_id = ?
`, campaignID, serialID.Hex())
	record, err := scanSettlement(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Settlement{}, storage.ErrNotFound
		}
		return domain.Settlement{}, fmt.Errorf("get settlement: %w", err)
	}
	return record, nil
}

// IsSettled reports whether a serial id has been settled in a campaign.
func (s *Store) IsSettled(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return false, fmt.Errorf("campaign id is required")
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM settlements WHERE campaign_id = ? AND serial_id = ?
`, campaignID, serialID.Hex()).Scan(&count); err != nil {
		return false, fmt.Errorf("check settlement exists: %w", err)
	}
	return count > 0, nil
}

// TotalWinners returns the running winner count for one campaign. A
// campaign with no settled winners yet reports zero.
func (s *Store) TotalWinners(ctx context.Context, campaignID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return 0, fmt.Errorf("campaign id is required")
	}

	var total uint64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT total_winners FROM winner_tallies WHERE campaign_id = ?
`, campaignID).Scan(&total)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get winner tally: %w", err)
	}
	return total, nil
}

func normalizeSettlement(settlement domain.Settlement) (domain.Settlement, error) {
	settlement.CampaignID = strings.TrimSpace(settlement.CampaignID)
	if settlement.CampaignID == "" {
		return domain.Settlement{}, fmt.Errorf("settlement campaign id is required")
	}
	if settlement.SerialID.IsZero() {
		return domain.Settlement{}, fmt.Errorf("settlement serial id is required")
	}
	if settlement.SettledAt.IsZero() {
		return domain.Settlement{}, fmt.Errorf("settlement settled_at is required")
	}
	settlement.SettledAt = settlement.SettledAt.UTC()
	return settlement, nil
}

func scanSettlement(scan scanner) (domain.Settlement, error) {
	var record domain.Settlement
	var serialID string
	var won int
	var settledAt int64
	if err := scan(
		&record.CampaignID,
		&serialID,
		&won,
		&settledAt,
	); err != nil {
		return domain.Settlement{}, err
	}
	serial, err := merkle.DigestFromHex(serialID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("decode serial id: %w", err)
	}
	record.SerialID = serial
	record.Won = won != 0
	record.SettledAt = fromMillis(settledAt)
	return record, nil
}

var _ storage.SettlementStore = (*Store)(nil)
