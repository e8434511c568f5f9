package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"photo-triage/frontend"
	"photo-triage/internal/domain"
	"photo-triage/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web interface and progress feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureSettings(); err != nil {
				return err
			}
			logger, err := ctx.logger(cmd.ErrOrStderr(), "")
			if err != nil {
				return err
			}

			// Settings are reread per run so edits apply without a restart.
			settings := func() (domain.Settings, error) { return ctx.store.Load() }
			srv := server.New(ctx.coordinator(logger), settings, frontend.Assets, logger)

			serveCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(serveCtx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":3000", "Listen address")
	return cmd
}
