package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kerrigan/swarm/internal/dispatch"
	"github.com/kerrigan/swarm/internal/models"
	"github.com/kerrigan/swarm/internal/output"
)

var (
	dispatchRole string
	dispatchWait bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <issue> [issue...]",
	Short: "Dispatch agent sessions for one or more issues",
	Long: `Dispatch agent sessions for the given GitHub issue numbers.

Each issue must carry an autonomy gate label (agent:go, agent:sprint, or
autonomy:override). Issues that fail the gate, exceed the concurrency
ceiling, or already have an active session are reported and skipped;
the rest are dispatched concurrently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dispatchRun(cmd.Context(), args)
	},
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchRole, "role", "", "Override the role determined from issue labels")
	dispatchCmd.Flags().BoolVar(&dispatchWait, "wait", false, "Block until all dispatched sessions reach a terminal state")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchRun(ctx context.Context, args []string) error {
	issueNumbers := make([]int, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid issue number: %s", arg)
		}
		issueNumbers = append(issueNumbers, n)
	}

	in, err := getIntake()
	if err != nil {
		return err
	}
	ctrl, err := getController()
	if err != nil {
		return err
	}

	// Prepare contexts up front so gate failures are reported before any
	// session is created.
	var contexts []models.AgentContext
	for _, n := range issueNumbers {
		ac, err := in.Prepare(n, dispatchRole)
		if err != nil {
			if gateErr, ok := err.(*dispatch.GateClosedError); ok {
				ui.Warning("skipping issue #%d: %s", gateErr.IssueNumber, gateErr.Reason)
				continue
			}
			return err
		}
		contexts = append(contexts, ac)
	}
	if len(contexts) == 0 {
		ui.Warning("no eligible issues to dispatch")
		return nil
	}

	if dryRun {
		for _, ac := range contexts {
			ui.DryRunMsg("Would dispatch issue #%d with role %s", ac.Issue.Number, ac.Role)
		}
		return nil
	}

	result := ctrl.DispatchBatch(ctx, contexts)
	for _, r := range result.Failed {
		ui.Error("issue #%d: %s", r.IssueNumber, r.Error)
	}
	for _, r := range result.Successful {
		ui.Success("issue #%d dispatched as %s", r.IssueNumber, r.SessionID)
	}
	ui.Info("dispatched %d/%d issues", len(result.Successful), result.Total)

	if !dispatchWait {
		return nil
	}
	return waitForSessions(ctx, ctrl, result.Successful)
}

// waitForSessions blocks until every dispatched session is terminal, then
// prints a summary table.
func waitForSessions(ctx context.Context, ctrl *dispatch.Controller, dispatched []models.DispatchResult) error {
	table := ui.Table([]string{"SESSION", "ISSUE", "STATE", "PR", "ERROR"})
	failed := 0
	for _, r := range dispatched {
		sess, err := ctrl.Wait(ctx, r.SessionID)
		if err != nil {
			return err
		}
		pr := ""
		if sess.PRNumber > 0 {
			pr = fmt.Sprintf("#%d", sess.PRNumber)
		}
		if sess.State == models.SessionStateFailed {
			failed++
		}
		table.Append([]string{
			sess.ID,
			fmt.Sprintf("#%d", sess.IssueNumber),
			output.StateColor(string(sess.State)),
			pr,
			sess.Error,
		})
	}
	table.Render()

	if err := ctrl.Stop(); err != nil {
		ui.Warning("shutdown: %v", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", failed, len(dispatched))
	}
	return nil
}
