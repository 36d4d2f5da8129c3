package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kerrigan/swarm/internal/completion"
	"github.com/kerrigan/swarm/internal/githubapi"
	"github.com/kerrigan/swarm/internal/models"
)

var processRole string

var processCmd = &cobra.Command{
	Use:   "process <issue>",
	Short: "Process a single issue end to end",
	Long: `Process one GitHub issue: check the autonomy gate, post a started
comment, dispatch an agent session, and block until it completes or fails.

Exit status is non-zero when the session fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid issue number: %s", args[0])
		}
		return processRun(cmd.Context(), n)
	},
}

func init() {
	processCmd.Flags().StringVar(&processRole, "role", "", "Override the role determined from issue labels")
	rootCmd.AddCommand(processCmd)
}

func processRun(ctx context.Context, issueNumber int) error {
	in, err := getIntake()
	if err != nil {
		return err
	}
	ctrl, err := getController()
	if err != nil {
		return err
	}

	ac, err := in.Prepare(issueNumber, processRole)
	if err != nil {
		return err
	}
	ui.Info("issue #%d: %s (role: %s)", ac.Issue.Number, ac.Issue.Title, ac.Role)

	if dryRun {
		ui.DryRunMsg("Would dispatch issue #%d with role %s", ac.Issue.Number, ac.Role)
		return nil
	}

	// Announce before dispatching so a watcher sees the claim even if the
	// session dies early. Comment failure is not fatal.
	gh := githubapi.NewClient()
	owner := viper.GetString("github.owner")
	repo := viper.GetString("github.repo")
	if err := gh.PostComment(owner, repo, issueNumber, completion.StartedBody(ac.Role)); err != nil {
		ui.Warning("post started comment: %v", err)
	}

	result := ctrl.Dispatch(ctx, ac)
	if !result.Dispatched {
		return fmt.Errorf("dispatch issue #%d: %s", issueNumber, result.Error)
	}
	ui.Success("dispatched as %s", result.SessionID)

	sess, err := ctrl.Wait(ctx, result.SessionID)
	if err != nil {
		return err
	}

	if stopErr := ctrl.Stop(); stopErr != nil {
		ui.Warning("shutdown: %v", stopErr)
	}

	switch sess.State {
	case models.SessionStateCompleted:
		ui.Success("session %s completed: PR #%d on %s", sess.ID, sess.PRNumber, sess.Branch)
		return nil
	default:
		return fmt.Errorf("session %s failed: %s", sess.ID, sess.Error)
	}
}
