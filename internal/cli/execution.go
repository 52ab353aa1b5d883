package cli

import (
	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для просмотра executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execution",
		Short: "Inspect workflow executions",
	}

	cmd.AddCommand(
		newExecutionListCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list WORKFLOW_ID",
		Short: "List executions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			executions, err := client.ListExecutions(args[0], limit)
			if err != nil {
				return err
			}

			out.Executions(executions)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of executions to return")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ex, err := client.GetExecution(args[0])
			if err != nil {
				return err
			}

			out.Execution(ex)
			return nil
		},
	}
}
