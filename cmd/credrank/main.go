// Package main runs one credrank batch: compute cred and distribute grain.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	credrankcmd "github.com/louisbranch/credrank/internal/cmd/credrank"
	"github.com/louisbranch/credrank/internal/platform/config"
	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
)

func main() {
	cfg, err := credrankcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf(2, "parse flags: %v", err)
	}
	log.SetPrefix("[CREDRANK] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := credrankcmd.Run(ctx, cfg, os.Stdout); err != nil {
		stop()
		config.Exitf(apperrors.GetCode(err).ExitCode(), "credrank: %v", err)
	}
}
