// Package main is the entry point for the plugreg command.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/plugreg/internal/app"
	"github.com/dshills/plugreg/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	env, err := config.ParseEnv()
	if err != nil {
		return fail(fmt.Errorf("%w: environment: %v", app.ErrUsage, err))
	}

	fs := flag.NewFlagSet("plugreg", flag.ContinueOnError)
	var showVersion bool
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "plugreg - plugin settings registry\n\n")
		fmt.Fprintf(os.Stderr, "Usage: plugreg [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n%s\n", app.Usage())
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  plugreg -path ./plugins plugins\n")
		fmt.Fprintf(os.Stderr, "  plugreg -backend ini -param dir=$HOME/.config/plugreg/settings set core.hsize 4\n")
		fmt.Fprintf(os.Stderr, "  plugreg -profile work export work.toml\n")
	}

	opts, args, err := app.ParseOptions(fs, os.Args[1:], env)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return fail(err)
	}
	if showVersion {
		fmt.Printf("plugreg %s (commit %s, built %s)\n", version, commit, date)
		return 0
	}
	if len(args) == 0 {
		fs.Usage()
		return 2
	}

	// Cancel on SIGINT/SIGTERM so watch returns and the session closes.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, opts)
	if err != nil {
		return fail(err)
	}
	defer application.Shutdown()

	if err := application.Run(ctx, args); err != nil {
		return fail(err)
	}
	return 0
}

// fail reports err and returns the exit status: 2 for usage errors, 1 for
// everything else.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "plugreg: %v\n", err)
	if errors.Is(err, app.ErrUsage) {
		return 2
	}
	return 1
}
