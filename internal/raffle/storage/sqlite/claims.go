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

// PutClaim records one claim and its audit events atomically. Returns
// storage.ErrConflict when the (campaign, serial) pair is already claimed.
func (s *Store) PutClaim(ctx context.Context, claim domain.Claim, events []event.Event) error {
	return s.PutClaims(ctx, []domain.Claim{claim}, events)
}

// PutClaims records a batch of claims and their audit events in one
// transaction. Any conflict aborts the whole batch with no partial writes.
func (s *Store) PutClaims(ctx context.Context, claims []domain.Claim, events []event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if len(claims) == 0 {
		return fmt.Errorf("at least one claim is required")
	}
	normalized := make([]domain.Claim, 0, len(claims))
	for _, claim := range claims {
		normalizedClaim, err := normalizeClaim(claim)
		if err != nil {
			return err
		}
		normalized = append(normalized, normalizedClaim)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin claim write: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback claim write: %v", cause, rollbackErr)
		}
		return cause
	}

	for _, claim := range normalized {
		_, err := tx.ExecContext(ctx, `
	INSERT INTO claims (
		campaign_id, serial_id, claimant_id, payload, claimed_at, revealed
	) VALUES (?, ?, ?, ?, ?, 0)
	`,
			claim.CampaignID,
			claim.SerialID.Hex(),
			claim.ClaimantID,
			claim.Payload,
			toMillis(claim.ClaimedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) || isForeignKeyConstraintError(err) {
				return rollbackWith(storage.ErrConflict)
			}
			return rollbackWith(fmt.Errorf("put claim: %w", err))
		}
	}
	if err := appendEventsExec(ctx, tx, events); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim write: %w", err)
	}
	return nil
}

// GetClaim loads one claim by campaign and serial id.
func (s *Store) GetClaim(ctx context.Context, campaignID string, serialID merkle.Digest) (domain.Claim, error) {
	if err := ctx.Err(); err != nil {
		return domain.Claim{}, err
	}
	if s == nil || s.sqlDB == nil {
		return domain.Claim{}, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return domain.Claim{}, fmt.Errorf("campaign id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT campaign_id, serial_id, claimant_id, payload, claimed_at, revealed
FROM claims
WHERE campaign_id = ? AND serial_id = ?
`, campaignID, serialID.Hex())
	record, err := scanClaim(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Claim{}, storage.ErrNotFound
		}
		return domain.Claim{}, fmt.Errorf("get claim: %w", err)
	}
	return record, nil
}

// IsClaimed reports whether a serial id has been claimed in a campaign.
func (s *Store) IsClaimed(ctx context.Context, campaignID string, serialID merkle.Digest) (bool, error) {
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
SELECT COUNT(1) FROM claims WHERE campaign_id = ? AND serial_id = ?
`, campaignID, serialID.Hex()).Scan(&count); err != nil {
		return false, fmt.Errorf("check claim exists: %w", err)
	}
	return count > 0, nil
}

// ListClaimsByClaimant returns one claimant's claims in insertion order.
func (s *Store) ListClaimsByClaimant(ctx context.Context, campaignID, claimantID string) ([]domain.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	campaignID = strings.TrimSpace(campaignID)
	claimantID = strings.TrimSpace(claimantID)
	if campaignID == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if claimantID == "" {
		return nil, fmt.Errorf("claimant id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT campaign_id, serial_id, claimant_id, payload, claimed_at, revealed
FROM claims
WHERE campaign_id = ? AND claimant_id = ?
ORDER BY rowid ASC
`, campaignID, claimantID)
	if err != nil {
		return nil, fmt.Errorf("list claims by claimant: %w", err)
	}
	defer rows.Close()

	var results []domain.Claim
	for rows.Next() {
		record, scanErr := scanClaim(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan claim row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim rows: %w", err)
	}
	return results, nil
}

// MarkClaimRevealed flips the revealed flag on one unrevealed claim,
// appending the audit events atomically.
func (s *Store) MarkClaimRevealed(ctx context.Context, campaignID string, serialID merkle.Digest, events []event.Event) error {
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reveal mark: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback reveal mark: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := markClaimRevealedExec(ctx, tx, campaignID, serialID); err != nil {
		return rollbackWith(err)
	}
	if err := appendEventsExec(ctx, tx, events); err != nil {
		return rollbackWith(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reveal mark: %w", err)
	}
	return nil
}

func markClaimRevealedExec(ctx context.Context, execer sqlExecer, campaignID string, serialID merkle.Digest) error {
	result, err := execer.ExecContext(ctx, `
UPDATE claims
SET revealed = 1
WHERE campaign_id = ? AND serial_id = ? AND revealed = 0
`, campaignID, serialID.Hex())
	if err != nil {
		return fmt.Errorf("mark claim revealed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark claim revealed rows affected: %w", err)
	}
	if affected == 0 {
		var count int
		if err := execer.QueryRowContext(ctx, `
SELECT COUNT(1) FROM claims WHERE campaign_id = ? AND serial_id = ?
`, campaignID, serialID.Hex()).Scan(&count); err != nil {
			return fmt.Errorf("check claim exists: %w", err)
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}
	return nil
}

func normalizeClaim(claim domain.Claim) (domain.Claim, error) {
	claim.CampaignID = strings.TrimSpace(claim.CampaignID)
	claim.ClaimantID = strings.TrimSpace(claim.ClaimantID)
	if claim.CampaignID == "" {
		return domain.Claim{}, fmt.Errorf("claim campaign id is required")
	}
	if claim.SerialID.IsZero() {
		return domain.Claim{}, fmt.Errorf("claim serial id is required")
	}
	if claim.ClaimantID == "" {
		return domain.Claim{}, fmt.Errorf("claim claimant id is required")
	}
	if len(claim.Payload) == 0 {
		return domain.Claim{}, fmt.Errorf("claim payload is required")
	}
	if claim.ClaimedAt.IsZero() {
		return domain.Claim{}, fmt.Errorf("claim claimed_at is required")
	}
	claim.ClaimedAt = claim.ClaimedAt.UTC()
	return claim, nil
}

func scanClaim(scan scanner) (domain.Claim, error) {
	var record domain.Claim
	var serialID string
	var claimedAt int64
	var revealed int
	if err := scan(
		&record.CampaignID,
		&serialID,
		&record.ClaimantID,
		&record.Payload,
		&claimedAt,
		&revealed,
	); err != nil {
		return domain.Claim{}, err
	}
	serial, err := merkle.DigestFromHex(serialID)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("decode serial id: %w", err)
	}
	record.SerialID = serial
	record.ClaimedAt = fromMillis(claimedAt)
	record.Revealed = revealed != 0
	return record, nil
}

var _ storage.ClaimStore = (*Store)(nil)
