// Package main provides the daily-ai-news command line.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
)

// Version is set at build time.
var Version = "dev"

const (
	exitFailure = 1
	// exitRestart is EX_TEMPFAIL: the process stopped on purpose and should be started again.
	exitRestart = 75
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	code := exitCode(err)
	if code == exitFailure && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("daily-ai-news failed")
	}
	os.Exit(code)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errSettingsChanged):
		return exitRestart
	default:
		return exitFailure
	}
}
