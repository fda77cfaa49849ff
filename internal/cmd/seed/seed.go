// Package seed parses seed command flags and runs the demo raffle seeder.
package seed

import (
	"context"
	"flag"
	"os"
	"time"

	entrypoint "github.com/louisbranch/sortition/internal/platform/cmd"
	"github.com/louisbranch/sortition/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath      string        `env:"SORTITION_SEED_DB" envDefault:"sortition.db"`
	Leaves      int           `env:"SORTITION_SEED_LEAVES" envDefault:"8"`
	Winners     int           `env:"SORTITION_SEED_WINNERS" envDefault:"3"`
	ClaimWindow time.Duration `env:"SORTITION_SEED_CLAIM_WINDOW" envDefault:"1h"`
	Settle      bool          `env:"SORTITION_SEED_SETTLE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.IntVar(&cfg.Leaves, "leaves", cfg.Leaves, "Number of serials in the demo campaign")
	fs.IntVar(&cfg.Winners, "winners", cfg.Winners, "Number of winning serials")
	fs.DurationVar(&cfg.ClaimWindow, "claim-window", cfg.ClaimWindow, "How long the demo campaign accepts claims")
	fs.BoolVar(&cfg.Settle, "settle", cfg.Settle, "Also run a settlement pass over every claim")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds the demo raffle.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, func(ctx context.Context) error {
		return seed.Run(ctx, seed.Config{
			DBPath:      cfg.DBPath,
			Leaves:      cfg.Leaves,
			Winners:     cfg.Winners,
			ClaimWindow: cfg.ClaimWindow,
			Settle:      cfg.Settle,
		}, os.Stdout)
	})
}
