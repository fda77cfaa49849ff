// Package seed populates a local development database with a demo
// raffle: a committed campaign, registered claims, and optionally a full
// settlement pass. It exercises the registry, ledger, and settlement
// engine end to end against the real SQLite store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/louisbranch/sortition/internal/merkle"
	"github.com/louisbranch/sortition/internal/raffle/access"
	"github.com/louisbranch/sortition/internal/raffle/domain"
	"github.com/louisbranch/sortition/internal/raffle/ledger"
	"github.com/louisbranch/sortition/internal/raffle/registry"
	"github.com/louisbranch/sortition/internal/raffle/settle"
	"github.com/louisbranch/sortition/internal/raffle/storage/sqlite"
	"github.com/louisbranch/sortition/internal/telemetry"
	"github.com/louisbranch/sortition/internal/tools/treegen"
)

// Config holds seed command configuration.
type Config struct {
	// DBPath is the SQLite database to seed.
	DBPath string
	// Leaves is the number of serials in the demo campaign.
	Leaves int
	// Winners is the number of winning serials.
	Winners int
	// ClaimWindow is how long the demo campaign accepts claims.
	ClaimWindow time.Duration
	// Settle also runs a post-expiry settlement pass over every claim.
	Settle bool
}

// DefaultConfig returns the seed defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:      "sortition.db",
		Leaves:      8,
		Winners:     3,
		ClaimWindow: time.Hour,
	}
}

// Run seeds the database with one demo raffle.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		return errors.New("output is required")
	}
	if cfg.DBPath == "" {
		return errors.New("database path is required")
	}
	if cfg.ClaimWindow <= 0 {
		return errors.New("claim window must be positive")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	manifest, err := treegen.GenerateManifest(cfg.Leaves, cfg.Winners, nil)
	if err != nil {
		return err
	}
	pack, err := treegen.BuildPack(manifest)
	if err != nil {
		return err
	}
	root, err := merkle.DigestFromHex(pack.Root)
	if err != nil {
		return fmt.Errorf("decode root: %w", err)
	}

	now := time.Now().UTC()
	expiry := now.Add(cfg.ClaimWindow)

	campaign, err := registry.NewService(store, nil, nil).CreateCampaign(ctx, domain.CreateCampaignInput{
		OwnerID:       "seed-owner",
		CommittedRoot: root,
		TotalLeaves:   pack.TotalLeaves,
		ExpiresAt:     expiry,
	})
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	fmt.Fprintf(out, "campaign %s root %s (%d leaves)\n", campaign.ID, pack.Root, pack.TotalLeaves)

	reveals, err := registerClaims(ctx, store, campaign.ID, pack)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "registered %d claims\n", len(reveals))

	if !cfg.Settle {
		return nil
	}

	// Settlement opens at expiry; the engine gets a clock positioned there
	// so the demo settles without waiting out the claim window.
	engine := settle.NewService(store, store, store, store,
		func() time.Time { return expiry },
		settle.Options{Emitter: telemetry.NewEmitter(store)},
	)
	results, err := engine.RevealAndSettleBatch(ctx, settle.Actor{ID: "seed-engine", Role: access.RoleEngine}, campaign.ID, reveals)
	if err != nil {
		return fmt.Errorf("settle batch: %w", err)
	}
	settled := 0
	for _, result := range results {
		if result.Err == nil {
			settled++
		}
	}
	winners, err := engine.TotalWinners(ctx, campaign.ID)
	if err != nil {
		return fmt.Errorf("total winners: %w", err)
	}
	fmt.Fprintf(out, "settled %d claims, %d winners\n", settled, winners)
	return nil
}

func registerClaims(ctx context.Context, store *sqlite.Store, campaignID string, pack treegen.ProofPack) ([]domain.Reveal, error) {
	claims := ledger.NewService(store, store, store, nil)
	reveals := make([]domain.Reveal, 0, len(pack.Leaves))
	for i, leaf := range pack.Leaves {
		serial, err := merkle.DigestFromHex(leaf.SerialID)
		if err != nil {
			return nil, fmt.Errorf("leaf %d serial: %w", i, err)
		}
		secret, err := merkle.DigestFromHex(leaf.Secret)
		if err != nil {
			return nil, fmt.Errorf("leaf %d secret: %w", i, err)
		}
		proof := make([]merkle.Digest, 0, len(leaf.Proof))
		for _, sibling := range leaf.Proof {
			decoded, err := merkle.DigestFromHex(sibling)
			if err != nil {
				return nil, fmt.Errorf("leaf %d proof: %w", i, err)
			}
			proof = append(proof, decoded)
		}

		actor := ledger.Actor{ID: fmt.Sprintf("seed-claimant-%d", i), Role: access.RoleAnyone}
		_, err = claims.RegisterClaim(ctx, actor, ledger.RegisterClaimInput{
			CampaignID: campaignID,
			SerialID:   serial,
			Payload:    []byte("seed:" + leaf.Secret),
		})
		if err != nil {
			return nil, fmt.Errorf("register claim %d: %w", i, err)
		}
		reveals = append(reveals, domain.Reveal{
			SerialID: serial,
			Secret:   secret,
			Win:      leaf.Win,
			Proof:    proof,
		})
	}
	return reveals, nil
}
