// Package main provides the offline commitment tree builder. Campaign
// owners use it to derive the root to publish and the proof pack their
// participants need at settlement time.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	treegencmd "github.com/louisbranch/sortition/internal/cmd/treegen"
)

func main() {
	cfg, err := treegencmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[TREEGEN] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := treegencmd.Run(ctx, cfg); err != nil {
		log.Fatalf("build tree: %v", err)
	}
}
