package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/sandevgo/recall/pkg/log"
	"github.com/sandevgo/recall/pkg/srv"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the context assembly engine",
	Long:  `Initializes storage, providers and the ingestion workers, then runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting recall")

		services, eng := NewServices(ctx)

		srv.StartServices(ctx, services)
		<-ctx.Done()

		// Let in-flight fact ingestion settle before tearing services down.
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.WaitForIngestion(drainCtx); err != nil {
			logger.Warn().Err(err).Msg("ingestion did not settle before shutdown")
		}

		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("recall has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
