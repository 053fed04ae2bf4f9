package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/growth/internal/engine"
	"github.com/roach88/growth/internal/progress"
)

// GrantOptions holds flags for the grant command.
type GrantOptions struct {
	*RootOptions
	Source string
}

// GrantView is the accepted award as printed by the CLI.
type GrantView struct {
	EventID        string `json:"event_id,omitempty"`
	Day            string `json:"day"`
	Awarded        int    `json:"awarded"`
	Experience     int    `json:"experience"`
	Level          int    `json:"level"`
	LeveledUp      bool   `json:"leveled_up"`
	Streak         int    `json:"streak"`
	RemainingToday int    `json:"remaining_today"`
}

func newGrantView(r progress.AwardResult) GrantView {
	return GrantView{
		EventID:        r.EventID,
		Day:            r.Day.String(),
		Awarded:        r.Awarded,
		Experience:     r.NewExperience,
		Level:          r.NewLevel,
		LeveledUp:      r.LeveledUp,
		Streak:         r.NewStreak,
		RemainingToday: r.RemainingToday,
	}
}

func (v GrantView) String() string {
	var b strings.Builder
	if v.Awarded == 0 {
		fmt.Fprintf(&b, "Synced, nothing awarded\n")
	} else {
		fmt.Fprintf(&b, "+%d XP (%d total)\n", v.Awarded, v.Experience)
	}
	if v.LeveledUp {
		fmt.Fprintf(&b, "Level up! Now level %d\n", v.Level)
	} else {
		fmt.Fprintf(&b, "Level %d\n", v.Level)
	}
	fmt.Fprintf(&b, "Streak %d, %d XP left today", v.Streak, v.RemainingToday)
	return b.String()
}

// NewGrantCommand creates the grant command.
func NewGrantCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GrantOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "grant <amount>",
		Short: "Award experience",
		Long: `Reconcile, then award experience to the user.

An award is rejected when it would push today's total over the daily ceiling,
or when --source names a task that was already credited today. A rejected
award changes nothing and exits with status 1. An amount of 0 only re-sends
the current record to the remote.

Example:
  growth grant 20 --source exercise
  growth grant 5 --user alice --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrant(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "task id the experience is credited to")

	return cmd
}

func runGrant(opts *GrantOptions, rawAmount string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	amount, err := strconv.Atoi(strings.TrimSpace(rawAmount))
	if err != nil || amount < 0 {
		return formatter.Fail("grant", fmt.Errorf("%w: %q must be a whole number >= 0", engine.ErrInvalidAmount, rawAmount))
	}

	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail("grant", err)
	}
	defer s.Close()

	ctx := cmd.Context()
	if _, err := s.engine.Reconcile(ctx, s.userID); err != nil {
		return formatter.Fail("reconcile failed", err)
	}

	result, err := s.engine.Grant(ctx, s.userID, amount, opts.Source)
	if engine.IsRejection(err) {
		return formatter.Fail("award rejected", err)
	}
	if err != nil {
		return formatter.Fail("grant failed", err)
	}

	formatter.VerboseLog("Granted %d to %s (source %q)", amount, s.userID, opts.Source)
	return formatter.Success(newGrantView(result))
}
