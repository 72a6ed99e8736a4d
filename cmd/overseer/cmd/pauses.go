package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/overseerd/overseer/pkg/gate"
)

var pausesProject string

var pausesCmd = &cobra.Command{
	Use:   "pauses",
	Short: "Inspect and resolve intervention pauses",
}

var pausesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unresolved pauses",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		g := gate.New(st, newLogger())
		pauses, err := g.ActivePauses(pausesProject)
		if err != nil {
			return err
		}

		if done, err := printStructured(pauses); done {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Session", "Project", "Reason", "Since")
		for _, p := range pauses {
			table.Append([]string{
				p.SessionID, p.ProjectID, p.Reason,
				p.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

var pausesResolveCmd = &cobra.Command{
	Use:   "resolve <session-id>",
	Short: "Resolve the pending pause for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		g := gate.New(st, newLogger())
		p, err := g.Resolve(args[0])
		if err != nil {
			return err
		}
		if p == nil {
			fmt.Printf("No unresolved pause for session %s\n", args[0])
			return nil
		}

		if done, err := printStructured(p); done {
			return err
		}
		fmt.Printf("Pause resolved for session %s (%s)\n", args[0], p.Reason)
		return nil
	},
}

func init() {
	pausesListCmd.Flags().StringVar(&pausesProject, "project", "", "filter by project ID")

	pausesCmd.AddCommand(pausesListCmd)
	pausesCmd.AddCommand(pausesResolveCmd)
	rootCmd.AddCommand(pausesCmd)
}
