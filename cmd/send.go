package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/theapemachine/a2a-sdk/pkg/a2a"
	"github.com/theapemachine/a2a-sdk/pkg/client"
)

var (
	urlFlag     string
	timeoutFlag time.Duration
	contextFlag string

	sendCmd = &cobra.Command{
		Use:   "send [message]",
		Short: "Send a message to an agent and follow the task",
		Long:  longSend,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
			defer cancel()

			c, err := dialAgent(ctx, urlFlag)

			if err != nil {
				return err
			}

			defer c.Close()

			message := a2a.NewUserMessage(strings.Join(args, " "))
			message.ContextID = contextFlag

			updates, err := c.SendMessage(ctx, message, nil)

			if err != nil {
				return err
			}

			var last client.TaskUpdate

			for update := range updates {
				if update.Err != nil {
					return update.Err
				}

				logEvent(update.Event)
				last = update
			}

			if last.Task != nil {
				fmt.Println(last.Task.String())
			}

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(sendCmd)

	rootCmd.PersistentFlags().StringVarP(
		&urlFlag, "url", "u", "http://localhost:3210", "Base URL of the agent",
	)

	sendCmd.Flags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "How long to wait for the task to finish")
	sendCmd.Flags().StringVar(&contextFlag, "context", "", "Context ID to continue an earlier conversation")
}

/*
dialAgent resolves the agent's card and builds a client on the best
transport both sides speak.
*/
func dialAgent(ctx context.Context, baseURL string) (*client.Client, error) {
	c, err := client.NewFactory(nil).CreateFromURL(ctx, baseURL)

	if err != nil {
		return nil, fmt.Errorf("failed to reach agent at %s: %w", baseURL, err)
	}

	return c, nil
}

func logEvent(event a2a.Event) {
	switch ev := event.(type) {
	case *a2a.Task:
		log.Info("task accepted", "task_id", ev.ID, "state", ev.Status.State)
	case *a2a.TaskStatusUpdateEvent:
		log.Info("status changed", "task_id", ev.TaskID, "state", ev.Status.State)
	case *a2a.TaskArtifactUpdateEvent:
		log.Info("artifact received", "task_id", ev.TaskID, "artifact", ev.Artifact.Name)
	case *a2a.Message:
		fmt.Println(ev.String())
	}
}

var longSend = `
Send a text message to an agent and follow the resulting task until it
reaches a terminal state. Streaming is used when the agent supports it,
falling back to a single request/response otherwise.

Examples:
  # Ask the local demo agent something
  a2a-sdk send "hello there"

  # Talk to a remote agent
  a2a-sdk send --url https://agent.example.com "summarize this"

  # Continue an earlier conversation
  a2a-sdk send --context ctx-123 "and then what?"
`
