package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/growth/internal/engine"
	"github.com/roach88/growth/internal/store"
)

// PruneOptions holds flags for the prune command.
type PruneOptions struct {
	*RootOptions
	Days int
}

// PruneView reports what prune removed.
type PruneView struct {
	Cutoff  string `json:"cutoff"`
	Removed int64  `json:"removed"`
}

func (v PruneView) String() string {
	return fmt.Sprintf("Removed %d ledger row(s) dated before %s", v.Removed, v.Cutoff)
}

// NewPruneCommand creates the prune command.
func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PruneOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop old daily ledger entries",
		Long: `Remove daily experience totals and task credits older than the retention
window from the local cache, for every user. Reconcile already does this;
prune is for caches that have not been opened in a while.

Example:
  growth prune
  growth prune --days 30`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrune(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Days, "days", 0, "retention in days (default retention_days from config)")

	return cmd
}

func runPrune(opts *PruneOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, log, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail("prune", err)
	}

	days := cfg.RetentionDays
	if cmd.Flags().Changed("days") {
		days = opts.Days
	}
	if days < 0 {
		return formatter.Fail("prune", NewExitError(ExitCommandError, fmt.Sprintf("invalid --days %d: must be >= 0", days)))
	}

	st, err := store.Open(cfg.CachePath, store.WithLogger(log))
	if err != nil {
		return formatter.Fail("prune", WrapExitError(ExitCommandError, "failed to open local cache", err))
	}
	defer st.Close()

	var clock engine.Clock = engine.SystemClock{}
	if opts.Clock != nil {
		clock = opts.Clock
	}
	today := clock.Today()

	removed, err := st.PruneLedgerOlderThan(cmd.Context(), today, days)
	if err != nil {
		return formatter.Fail("prune failed", err)
	}

	formatter.VerboseLog("Pruned %s with %d day(s) retention", cfg.CachePath, days)
	return formatter.Success(PruneView{
		Cutoff:  today.Add(-days).String(),
		Removed: removed,
	})
}
