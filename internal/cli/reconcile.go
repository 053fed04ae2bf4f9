package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/growth/internal/level"
	"github.com/roach88/growth/internal/progress"
)

// ProgressView is the progress record as printed by the CLI.
type ProgressView struct {
	UserID         string         `json:"user_id"`
	Experience     int            `json:"experience"`
	Level          int            `json:"level"`
	ToNextLevel    int            `json:"to_next_level"`
	Streak         int            `json:"streak"`
	LastActiveDate string         `json:"last_active_date,omitempty"`
	TasksCompleted int            `json:"tasks_completed"`
	PerTask        map[string]int `json:"per_task,omitempty"`
}

func newProgressView(p progress.UserProgress, t level.Table) ProgressView {
	v := ProgressView{
		UserID:         p.UserID,
		Experience:     p.Experience,
		Level:          p.Level,
		ToNextLevel:    t.ToNext(p.Experience),
		Streak:         p.StreakCount,
		TasksCompleted: p.TasksCompletedCount,
		PerTask:        p.PerTaskCompletionCounts,
	}
	if !p.LastActiveDate.IsZero() {
		v.LastActiveDate = p.LastActiveDate.String()
	}
	return v
}

func (v ProgressView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "User:       %s\n", v.UserID)
	fmt.Fprintf(&b, "Experience: %d\n", v.Experience)
	if v.ToNextLevel > 0 {
		fmt.Fprintf(&b, "Level:      %d (%d XP to next)\n", v.Level, v.ToNextLevel)
	} else {
		fmt.Fprintf(&b, "Level:      %d (max)\n", v.Level)
	}
	fmt.Fprintf(&b, "Streak:     %d\n", v.Streak)
	if v.LastActiveDate != "" {
		fmt.Fprintf(&b, "Active:     %s\n", v.LastActiveDate)
	}
	fmt.Fprintf(&b, "Tasks:      %d", v.TasksCompleted)
	return b.String()
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge local and remote progress",
		Long: `Merge the local cache with the remote progress document.

Experience and counters take the larger of the two copies, the level is
recomputed from experience, and the streak is extended, kept or reset against
today's date. The merged record is written back to both copies.

Example:
  growth reconcile --user alice
  growth reconcile --config ./growth.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, cmd)
		},
	}

	return cmd
}

func runReconcile(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail("reconcile", err)
	}
	defer s.Close()

	p, err := s.engine.Reconcile(cmd.Context(), s.userID)
	if err != nil {
		return formatter.Fail("reconcile failed", err)
	}

	formatter.VerboseLog("Reconciled %s on %s", s.userID, p.LastActiveDate)
	return formatter.Success(newProgressView(p, s.engine.Table()))
}
