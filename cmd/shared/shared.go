// Package shared holds what the bluegreen subcommands have in common.
package shared

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/samber/do"
	"github.com/yz4230/bluegreen/internal/config"
	"github.com/yz4230/bluegreen/internal/inject"
)

// Config is loaded by the root command before any subcommand runs.
var Config *config.Config

func NewInjector() *do.Injector {
	return inject.New(Config, log.Logger)
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the global
// logger.
func SignalContext() (context.Context, context.CancelFunc) {
	ctx := log.Logger.WithContext(context.Background())
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
