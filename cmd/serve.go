package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meetscribe/meetscribe/api"
	"github.com/meetscribe/meetscribe/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Config.OTLP.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			AgentHost:   app.Config.OTLP.AgentHost,
			Environment: app.Config.OTLP.Environment,
			ServiceName: app.Config.OTLP.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				app.Logger.Warn("trace exporter shutdown failed", "error", err)
			}
		}()
	}

	server := api.NewServer(api.Deps{
		Pool:      app.Pool,
		Documents: app.Store,
		Preparer:  app.Indexer,
		Asker:     app.Answerer,
		Turns:     app.Store,
		Suggester: app.Suggester,
		Logger:    app.Logger,
	})

	return server.Run(ctx, app.Config.ListenAddr)
}
