package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/roach88/growth/internal/config"
	"github.com/roach88/growth/internal/engine"
	"github.com/roach88/growth/internal/logging"
	"github.com/roach88/growth/internal/remote"
	"github.com/roach88/growth/internal/store"
)

// session is everything a command needs to talk to one user's progress.
type session struct {
	cfg    *config.Config
	log    zerolog.Logger
	store  *store.Store
	engine *engine.Engine
	userID string
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads --config and builds the logger from it. --verbose forces
// debug logging.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, zerolog.Nop(), WrapExitError(ExitCommandError, "failed to load config", err)
	}

	lvl := cfg.Logging.Level
	if opts.Verbose {
		lvl = "debug"
	}
	log, err := logging.New(lvl, cfg.Logging.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, zerolog.Nop(), WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	return cfg, log, nil
}

// openSession loads config, opens the local cache and builds an engine for
// the selected user. The caller must Close it.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, log, err := loadConfig(opts, cmd)
	if err != nil {
		return nil, err
	}

	userID := opts.UserID
	if userID == "" {
		userID = cfg.UserID
	}
	if userID == "" {
		return nil, NewExitError(ExitCommandError, "no user: pass --user or set user_id")
	}

	table, err := cfg.EngineTable()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve level table", err)
	}

	rs, err := remoteFor(opts, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to configure remote", err)
	}

	log.Debug().Str("path", cfg.CachePath).Msg("opening local cache")
	st, err := store.Open(cfg.CachePath, store.WithLogger(log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open local cache", err)
	}

	engOpts := []engine.EngineOption{
		engine.WithLogger(log),
		engine.WithDailyCeiling(cfg.DailyCeiling),
		engine.WithLevelTable(table),
		engine.WithRetentionDays(cfg.RetentionDays),
		engine.WithRemoteTimeout(cfg.Remote.Timeout),
		engine.WithRepeatableSources(cfg.RepeatableSources...),
	}
	if opts.Clock != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Clock))
	}
	if opts.IDs != nil {
		engOpts = append(engOpts, engine.WithIDGenerator(opts.IDs))
	}

	return &session{
		cfg:    cfg,
		log:    log,
		store:  st,
		engine: engine.New(st, rs, engOpts...),
		userID: userID,
	}, nil
}

// remoteFor returns the override, an HTTP client for remote.url, or the
// offline store when no URL is configured.
func remoteFor(opts *RootOptions, cfg *config.Config) (remote.Store, error) {
	if opts.Remote != nil {
		return opts.Remote, nil
	}
	if cfg.Remote.URL == "" {
		return remote.Offline{}, nil
	}
	return remote.NewClient(cfg.Remote.URL,
		remote.WithTimeout(cfg.Remote.Timeout),
		remote.WithTokenSecret(cfg.Remote.TokenSecret),
	)
}

// Close releases the local cache.
func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.log.Error().Err(err).Msg("error closing local cache")
	}
}
