package cmd

import (
	"context"
	"flag"
	"testing"
)

type testConfig struct {
	DBPath string `env:"SORTITION_CMD_TEST_DB_PATH" envDefault:"sortition.db"`
	Leaves int    `env:"SORTITION_CMD_TEST_LEAVES" envDefault:"8"`
}

func TestParseConfigReadsEnvAndFlags(t *testing.T) {
	t.Setenv("SORTITION_CMD_TEST_DB_PATH", "env.db")
	t.Setenv("SORTITION_CMD_TEST_LEAVES", "16")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := testConfig{}
	if err := ParseConfig(&cfg); err != nil {
		t.Fatalf("load config defaults: %v", err)
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "db path")
	fs.IntVar(&cfg.Leaves, "leaves", cfg.Leaves, "leaves")

	if err := ParseArgs(fs, []string{"-db", "flag.db"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.DBPath != "flag.db" {
		t.Fatalf("expected flag value for db path, got %q", cfg.DBPath)
	}
	if cfg.Leaves != 16 {
		t.Fatalf("expected env value for leaves, got %d", cfg.Leaves)
	}
}

func TestParseConfigFromArgsReadsEnvAndFlags(t *testing.T) {
	t.Setenv("SORTITION_CMD_TEST_DB_PATH", "configarg.db")
	t.Setenv("SORTITION_CMD_TEST_LEAVES", "32")

	cfg := testConfig{}
	fs := flag.NewFlagSet("configargs", flag.ContinueOnError)
	fs.StringVar(&cfg.DBPath, "db", "", "db path")
	fs.IntVar(&cfg.Leaves, "leaves", 0, "leaves")
	if err := ParseConfigFromArgs(&cfg, fs, []string{"-db", "flag2.db"}); err != nil {
		t.Fatalf("parse config and args: %v", err)
	}
	if cfg.DBPath != "flag2.db" {
		t.Fatalf("expected parsed flag db path, got %q", cfg.DBPath)
	}
	if cfg.Leaves != 32 {
		t.Fatalf("expected env default leaves, got %d", cfg.Leaves)
	}
}

func TestParseArgsRejectsNilParser(t *testing.T) {
	if err := ParseArgs(nil, []string{}); err == nil {
		t.Fatal("expected parse args to reject nil parser")
	}
}

func TestRunWithTelemetryRejectsMissingInputs(t *testing.T) {
	if err := RunWithTelemetry(nil, "", func(context.Context) error { return nil }); err == nil {
		t.Fatal("expected missing service error")
	}
	if err := RunWithTelemetry(nil, ServiceSeed, nil); err == nil {
		t.Fatal("expected missing run function error")
	}
}
