package main

import (
	"fmt"
	"os"

	"github.com/tphakala/fallguard/cmd"
	"github.com/tphakala/fallguard/internal/conf"
	"github.com/tphakala/fallguard/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}
	settings.Version = version
	settings.BuildDate = buildDate

	defer func() {
		if err := logger.Global().Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
		}
	}()

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		return 1
	}
	return 0
}
