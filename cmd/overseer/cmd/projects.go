package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/overseerd/overseer/pkg/models"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects and their task backlogs",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		projects, err := st.ListProjects()
		if err != nil {
			return err
		}

		if done, err := printStructured(projects); done {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Name", "Status", "Created")
		for _, p := range projects {
			table.Append([]string{
				p.ID, p.Name, string(p.Status),
				p.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p := &models.Project{Name: args[0]}
		if err := st.CreateProject(p); err != nil {
			return err
		}

		if done, err := printStructured(p); done {
			return err
		}
		fmt.Printf("Project created: %s\n", p.ID)
		return nil
	},
}

var projectsShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project and its backlog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := st.GetProject(args[0])
		if err != nil {
			return err
		}
		tasks, err := st.ListTasks(p.ID)
		if err != nil {
			return err
		}

		if done, err := printStructured(map[string]interface{}{
			"project": p,
			"tasks":   tasks,
		}); done {
			return err
		}

		fmt.Printf("Project: %s (%s)\nStatus: %s\n\n", p.Name, p.ID, p.Status)

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Ordinal", "Description", "Phase", "Done", "Checks")
		for _, t := range tasks {
			done := "no"
			if t.Completed {
				done = "yes"
			}
			passing := 0
			for _, c := range t.Checks {
				if c.Passed {
					passing++
				}
			}
			table.Append([]string{
				strconv.Itoa(t.Ordinal), t.Description, t.Phase, done,
				fmt.Sprintf("%d/%d", passing, len(t.Checks)),
			})
		}
		table.Render()
		return nil
	},
}

var taskChecks []string
var taskPhase string

var projectsAddTaskCmd = &cobra.Command{
	Use:   "add-task <project-id> <ordinal> <description>",
	Short: "Append a task to a project's backlog",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ordinal, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("ordinal must be an integer: %w", err)
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		t := &models.Task{
			ProjectID:   args[0],
			Ordinal:     ordinal,
			Description: args[2],
			Phase:       taskPhase,
		}
		for _, name := range taskChecks {
			t.Checks = append(t.Checks, models.TaskCheck{Name: name})
		}
		if err := st.CreateTask(t); err != nil {
			return err
		}

		if done, err := printStructured(t); done {
			return err
		}
		fmt.Printf("Task %d added to project %s\n", ordinal, args[0])
		return nil
	},
}

func init() {
	projectsAddTaskCmd.Flags().StringSliceVar(&taskChecks, "check", nil, "verification check name (repeatable)")
	projectsAddTaskCmd.Flags().StringVar(&taskPhase, "phase", "", "backlog phase the task belongs to")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsShowCmd)
	projectsCmd.AddCommand(projectsAddTaskCmd)
	rootCmd.AddCommand(projectsCmd)
}
