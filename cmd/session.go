package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kerrigan/swarm/internal/output"
)

var (
	sessionsActive bool
	historyLimit   int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List and manage agent sessions",
	Long: `List and manage agent sessions.

Running bare 'swarm sessions' is the same as 'swarm sessions list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun()
	},
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsListRun()
	},
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove completed and failed sessions from the registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsSweepRun()
	},
}

var sessionsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived terminal sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sessionsHistoryRun(cmd)
	},
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsActive, "active", false, "Only show non-terminal sessions")
	sessionsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of records to show")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsSweepCmd)
	sessionsCmd.AddCommand(sessionsHistoryCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func sessionsListRun() error {
	r := getRegistry()
	sessions := r.List()
	if sessionsActive {
		sessions = r.ListActive()
	}

	if len(sessions) == 0 {
		ui.Info("no sessions")
		return nil
	}

	table := ui.Table([]string{"SESSION", "ISSUE", "ROLE", "STATE", "PR", "UPDATED"})
	for _, s := range sessions {
		pr := ""
		if s.PRNumber > 0 {
			pr = fmt.Sprintf("#%d", s.PRNumber)
		}
		table.Append([]string{
			s.ID,
			fmt.Sprintf("#%d", s.IssueNumber),
			s.Context.Role,
			output.StateColor(string(s.State)),
			pr,
			s.UpdatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}

func sessionsSweepRun() error {
	r := getRegistry()
	if dryRun {
		ui.DryRunMsg("Would sweep %d terminal sessions", r.Len()-len(r.ListActive()))
		return nil
	}

	removed := r.SweepTerminal()
	ui.Success("swept %d terminal sessions", len(removed))
	return nil
}

func sessionsHistoryRun(cmd *cobra.Command) error {
	hist, err := getHistory()
	if err != nil {
		return err
	}
	if hist == nil {
		return fmt.Errorf("session history is not enabled (set swarm.history_db)")
	}

	records, err := hist.ListSessions(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.Info("no archived sessions")
		return nil
	}

	table := ui.Table([]string{"SESSION", "ISSUE", "ROLE", "STATE", "PR", "COMPLETED"})
	for _, r := range records {
		pr := ""
		if r.PRNumber > 0 {
			pr = fmt.Sprintf("#%d", r.PRNumber)
		}
		completed := ""
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(time.RFC3339)
		}
		table.Append([]string{
			r.SessionID,
			fmt.Sprintf("#%d", r.IssueNumber),
			r.Role,
			output.StateColor(r.State),
			pr,
			completed,
		})
	}
	table.Render()
	return nil
}
