// Package treegen parses treegen command flags and runs the tree builder.
package treegen

import (
	"context"
	"flag"
	"os"

	entrypoint "github.com/louisbranch/sortition/internal/platform/cmd"
	"github.com/louisbranch/sortition/internal/tools/treegen"
)

// Config holds treegen command configuration.
type Config struct {
	ManifestPath string `env:"SORTITION_TREEGEN_MANIFEST"`
	OutPath      string `env:"SORTITION_TREEGEN_OUT"`
	Generate     int    `env:"SORTITION_TREEGEN_GENERATE"`
	Winners      int    `env:"SORTITION_TREEGEN_WINNERS"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "Leaf manifest to read (or write with -generate)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Proof pack output path (default: stdout)")
	fs.IntVar(&cfg.Generate, "generate", cfg.Generate, "Generate a random manifest with this many leaves")
	fs.IntVar(&cfg.Winners, "winners", cfg.Winners, "Number of winning leaves in generate mode")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the commitment tree and emits the proof pack.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTreegen, func(context.Context) error {
		return treegen.Run(treegen.Config{
			ManifestPath: cfg.ManifestPath,
			OutPath:      cfg.OutPath,
			Generate:     cfg.Generate,
			Winners:      cfg.Winners,
		}, os.Stdout)
	})
}
