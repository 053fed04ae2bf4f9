package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/growth/internal/progress"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Cached bool
}

// StatusView is the status report: the record plus recent daily totals.
type StatusView struct {
	Progress       ProgressView `json:"progress"`
	Ceiling        int          `json:"daily_ceiling"`
	RemainingToday int          `json:"remaining_today"`
	Ledger         []LedgerDay  `json:"ledger"`
	Cached         bool         `json:"cached,omitempty"`
}

// LedgerDay is one day's awarded experience.
type LedgerDay struct {
	Day    string `json:"day"`
	Amount int    `json:"amount"`
}

func (v StatusView) String() string {
	var b strings.Builder
	b.WriteString(v.Progress.String())
	fmt.Fprintf(&b, "\nToday:      %d of %d XP left", v.RemainingToday, v.Ceiling)
	if len(v.Ledger) > 0 {
		b.WriteString("\n\nRecent days:")
		for _, d := range v.Ledger {
			fmt.Fprintf(&b, "\n  %s  %d XP", d.Day, d.Amount)
		}
	}
	if v.Cached {
		b.WriteString("\n\n(local cache only, not reconciled)")
	}
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show progress and recent daily totals",
		Long: `Reconcile and show the user's progress, today's remaining allowance and
the experience awarded on each retained day.

With --cached the local cache is read as is, without contacting the remote
or changing anything.

Example:
  growth status --user alice
  growth status --cached --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Cached, "cached", false, "read the local cache without reconciling")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail("status", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	var p progress.UserProgress
	if opts.Cached {
		cached, err := s.store.Load(ctx, s.userID)
		if err != nil {
			return formatter.Fail("status failed", err)
		}
		if cached == nil {
			p = progress.Empty(s.userID)
		} else {
			p = *cached
		}
	} else {
		if p, err = s.engine.Reconcile(ctx, s.userID); err != nil {
			return formatter.Fail("reconcile failed", err)
		}
	}

	ledger, err := s.store.Ledger(ctx, s.userID)
	if err != nil {
		return formatter.Fail("status failed", err)
	}
	today, err := s.store.LedgerTotal(ctx, s.userID, s.engine.Today())
	if err != nil {
		return formatter.Fail("status failed", err)
	}

	return formatter.Success(StatusView{
		Progress:       newProgressView(p, s.engine.Table()),
		Ceiling:        s.engine.Ceiling(),
		RemainingToday: s.engine.Remaining(today),
		Ledger:         ledgerDays(ledger),
		Cached:         opts.Cached,
	})
}

// ledgerDays orders the ledger oldest first.
func ledgerDays(ledger map[string]int) []LedgerDay {
	days := make([]LedgerDay, 0, len(ledger))
	for day, amount := range ledger {
		days = append(days, LedgerDay{Day: day, Amount: amount})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return days
}
