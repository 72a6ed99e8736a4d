package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List sessions for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(args[0])
		if err != nil {
			return err
		}

		if done, err := printStructured(sessions); done {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("#", "ID", "Type", "Status", "Units", "Started", "Ended")
		for _, s := range sessions {
			ended := "-"
			if s.EndedAt != nil {
				ended = s.EndedAt.Format("15:04:05")
			}
			table.Append([]string{
				strconv.Itoa(s.Number), s.ID, string(s.Type), string(s.Status),
				strconv.Itoa(s.UnitsCompleted),
				s.StartedAt.Format("2006-01-02 15:04:05"), ended,
			})
		}
		table.Render()
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its transition history and latest checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := st.GetSession(args[0])
		if err != nil {
			return err
		}
		cp, cpErr := st.LatestCheckpoint(sess.ID)

		if done, err := printStructured(map[string]interface{}{
			"session":    sess,
			"checkpoint": cp,
		}); done {
			return err
		}

		fmt.Printf("Session #%d (%s)\nProject: %s\nType: %s\nStatus: %s\nUnits completed: %d\n",
			sess.Number, sess.ID, sess.ProjectID, sess.Type, sess.Status, sess.UnitsCompleted)
		if sess.Error != "" {
			fmt.Printf("Error: %s\n", sess.Error)
		}

		if len(sess.Transitions) > 0 {
			fmt.Println("\nTransitions:")
			table := tablewriter.NewWriter(os.Stdout)
			table.Header("From", "To", "At", "Reason")
			for _, t := range sess.Transitions {
				table.Append([]string{
					string(t.From), string(t.To),
					t.Timestamp.Format("15:04:05"), t.Reason,
				})
			}
			table.Render()
		}

		if cpErr == nil {
			current, lastDone := "-", "-"
			if cp.CurrentOrdinal != nil {
				current = strconv.Itoa(*cp.CurrentOrdinal)
			}
			if cp.LastCompletedOrdinal != nil {
				lastDone = strconv.Itoa(*cp.LastCompletedOrdinal)
			}
			fmt.Printf("\nLatest checkpoint: current=%s last_completed=%s saved=%s\n",
				current, lastDone, cp.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}
