package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kerrigan/swarm/internal/roles"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List configured agent roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := roles.LoadTable(viper.GetString("swarm.roles_file"))
		if err != nil {
			return err
		}

		t := ui.Table([]string{"NAME", "LABEL", "PROMPT", "DESCRIPTION"})
		for _, r := range table.All() {
			t.Append([]string{r.Name, r.Label, r.PromptFile, r.Description})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rolesCmd)
}
