package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giovanni-lunetta/giovanni-site/pkg/channels"
	_ "github.com/giovanni-lunetta/giovanni-site/pkg/channels/autoload"
	"github.com/giovanni-lunetta/giovanni-site/pkg/config"
	"github.com/giovanni-lunetta/giovanni-site/pkg/gateway"
	"github.com/giovanni-lunetta/giovanni-site/pkg/handler"
	"github.com/giovanni-lunetta/giovanni-site/pkg/monitor"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the configured chat channels and block until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	monitor.PrintBanner(a.grounding.Name())

	if err := config.WatchSystemConfig(ctx, opts.systemPath, a.applySystem); err != nil {
		slog.Warn("System config hot reload disabled", "error", err)
	}

	chans := channels.LoadFromConfig(a.cfg.Channels, channels.Deps{
		Sessions: a.sessions,
		System:   a.sys,
		Contacts: a.recorders,
		Gatherer: a.registry,
	})

	gw, err := gateway.NewGatewayBuilder().
		WithMonitor(monitor.NewCLIMonitor()).
		WithChannel(chans...).
		WithHandler(handler.NewChatHandler(a.turns, a.sessions, a.turnTimeout())).
		Build(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("Received shutdown signal, stopping channels")
	gw.StopAll()
	slog.Info("Bye!")
	return nil
}
