package cmd

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
)

var (
	historyFlag   int
	contextIDFlag string
	statusFlag    string
	pageSizeFlag  int
	pageTokenFlag string

	taskCmd = &cobra.Command{
		Use:   "task",
		Short: "Inspect and control tasks on a remote agent",
		Long:  longTask,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	taskGetCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Fetch a task by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialAgent(cmd.Context(), urlFlag)

			if err != nil {
				return err
			}

			defer c.Close()

			params := &a2a.TaskQueryParams{ID: args[0]}

			if historyFlag > 0 {
				params.HistoryLength = &historyFlag
			}

			task, err := c.GetTask(cmd.Context(), params)

			if err != nil {
				return err
			}

			fmt.Println(task.String())

			return nil
		},
	}

	taskCancelCmd = &cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialAgent(cmd.Context(), urlFlag)

			if err != nil {
				return err
			}

			defer c.Close()

			task, err := c.CancelTask(cmd.Context(), &a2a.TaskIDParams{ID: args[0]})

			if err != nil {
				return err
			}

			log.Info("task canceled", "task_id", task.ID, "state", task.Status.State)

			return nil
		},
	}

	taskListCmd = &cobra.Command{
		Use:   "list",
		Short: "List tasks, optionally filtered by context or state",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialAgent(cmd.Context(), urlFlag)

			if err != nil {
				return err
			}

			defer c.Close()

			page, err := c.ListTasks(cmd.Context(), &a2a.ListTasksParams{
				ContextID: contextIDFlag,
				Status:    a2a.TaskState(statusFlag),
				PageSize:  pageSizeFlag,
				PageToken: pageTokenFlag,
			})

			if err != nil {
				return err
			}

			for _, task := range page.Tasks {
				fmt.Printf("%s  %-15s  %s\n", task.ID, task.Status.State, task.ContextID)
			}

			log.Info("listed tasks", "count", len(page.Tasks), "total", page.TotalSize)

			if page.NextPageToken != "" {
				log.Info("more tasks available", "page_token", page.NextPageToken)
			}

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskGetCmd)
	taskCmd.AddCommand(taskCancelCmd)
	taskCmd.AddCommand(taskListCmd)

	taskGetCmd.Flags().IntVar(&historyFlag, "history", 0, "How many history messages to include")

	taskListCmd.Flags().StringVar(&contextIDFlag, "context", "", "Only tasks in this context")
	taskListCmd.Flags().StringVar(&statusFlag, "status", "", "Only tasks in this state (working, completed, ...)")
	taskListCmd.Flags().IntVar(&pageSizeFlag, "page-size", 0, "Tasks per page")
	taskListCmd.Flags().StringVar(&pageTokenFlag, "page-token", "", "Resume listing from this token")
}

var longTask = `
Inspect and control tasks held by a remote agent.

Examples:
  # Fetch a task with its last five messages
  a2a-sdk task get task-123 --history 5

  # Cancel a task that is still running
  a2a-sdk task cancel task-123

  # Page through the completed tasks of one context
  a2a-sdk task list --context ctx-1 --status completed --page-size 20
`
