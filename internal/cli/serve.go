package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/growth/internal/docstore"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
	DSN  string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the progress document service",
		Long: `Serve progress documents over HTTP for growth clients to reconcile against.

Documents are kept in a SQLite file, or in PostgreSQL when the DSN starts with
postgres://. When remote.token_secret is set every request must carry a bearer
token signed with it whose subject is the requested user.

Example:
  growth serve
  growth serve --addr :9000 --dsn postgres://growth@localhost/growth`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default server.addr from config)")
	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "document database (default server.dsn from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, log, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	dsn := cfg.Server.DSN
	if opts.DSN != "" {
		dsn = opts.DSN
	}

	db, err := docstore.Open(dsn)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open document database", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	srv := docstore.NewServer(docstore.NewRepository(db),
		docstore.WithLogger(log),
		docstore.WithTokenSecret(cfg.Remote.TokenSecret),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("document service listening")
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", ln.Addr())

	select {
	case err := <-serveErr:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("shutdown")
	}
	// Serve may not have registered the listener yet.
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Msg("close listener")
	}
	<-serveErr
	return nil
}
