package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// LevelsOptions holds flags for the levels command.
type LevelsOptions struct {
	*RootOptions
	Table string
	XP    int
}

// LevelsView describes one level table.
type LevelsView struct {
	Table     string       `json:"table"`
	Available []string     `json:"available"`
	Levels    []LevelEntry `json:"levels"`
	ForXP     *LevelForXP  `json:"for_xp,omitempty"`
}

// LevelEntry is the experience at which a level starts.
type LevelEntry struct {
	Level      int `json:"level"`
	Experience int `json:"experience"`
}

// LevelForXP is the level reached at a given experience.
type LevelForXP struct {
	Experience int `json:"experience"`
	Level      int `json:"level"`
	ToNext     int `json:"to_next"`
}

func (v LevelsView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s (available: %s)\n", v.Table, strings.Join(v.Available, ", "))
	for _, l := range v.Levels {
		fmt.Fprintf(&b, "  level %2d  %6d XP\n", l.Level, l.Experience)
	}
	if v.ForXP != nil {
		fmt.Fprintf(&b, "%d XP is level %d, %d XP to next\n", v.ForXP.Experience, v.ForXP.Level, v.ForXP.ToNext)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewLevelsCommand creates the levels command.
func NewLevelsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LevelsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "levels",
		Short: "Show a level table",
		Long: `Print the experience thresholds of a level table. The default is the
table configured as level_table; custom tables come from the tables section
of the config.

Example:
  growth levels
  growth levels --table flat --xp 450`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLevels(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Table, "table", "t", "", "table name (default level_table from config)")
	cmd.Flags().IntVar(&opts.XP, "xp", 0, "also show the level reached at this experience")

	return cmd
}

func runLevels(opts *LevelsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, _, err := loadConfig(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail("levels", err)
	}

	reg, err := cfg.Registry()
	if err != nil {
		return formatter.Fail("levels", WrapExitError(ExitCommandError, "invalid level tables", err))
	}

	name := cfg.LevelTable
	if opts.Table != "" {
		name = strings.ToLower(strings.TrimSpace(opts.Table))
	}
	table, ok := reg.Lookup(name)
	if !ok {
		return formatter.Fail("levels", NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q", name)))
	}

	view := LevelsView{
		Table:     table.Name(),
		Available: reg.Names(),
	}
	for i, xp := range table.Thresholds() {
		view.Levels = append(view.Levels, LevelEntry{Level: i + 1, Experience: xp})
	}
	if cmd.Flags().Changed("xp") {
		view.ForXP = &LevelForXP{
			Experience: opts.XP,
			Level:      table.LevelFor(opts.XP),
			ToNext:     table.ToNext(opts.XP),
		}
	}

	return formatter.Success(view)
}
