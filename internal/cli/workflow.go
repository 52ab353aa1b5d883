package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflow.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowUpdateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workflows, err := client.ListWorkflows()
			if err != nil {
				return err
			}

			out.Workflows(workflows)
			return nil
		},
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, graphFile string
	var active bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CreateWorkflowRequest{Name: name, IsActive: active}
			if graphFile != "" {
				graph, err := os.ReadFile(graphFile)
				if err != nil {
					return fmt.Errorf("read graph file: %w", err)
				}
				req.Graph = graph
			}

			wf, err := client.CreateWorkflow(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Workflow(wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Workflow name, doubles as the hook name (required)")
	cmd.Flags().StringVar(&graphFile, "graph", "", "Path to a JSON file with the workflow graph")
	cmd.Flags().BoolVar(&active, "active", false, "Activate the workflow immediately")
	cmd.MarkFlagRequired("name")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			wf, err := client.GetWorkflow(args[0])
			if err != nil {
				return err
			}

			out.Workflow(wf)
			return nil
		},
	}
}

func newWorkflowUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var graphFile string
	var active string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			var req UpdateWorkflowRequest
			if graphFile != "" {
				graph, err := os.ReadFile(graphFile)
				if err != nil {
					return fmt.Errorf("read graph file: %w", err)
				}
				if !json.Valid(graph) {
					return fmt.Errorf("graph file is not valid JSON")
				}
				req.Graph = graph
			}
			if active != "" {
				v, err := strconv.ParseBool(active)
				if err != nil {
					return fmt.Errorf("invalid --active value: %q", active)
				}
				req.IsActive = &v
			}

			wf, err := client.UpdateWorkflow(args[0], req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow updated: %s", wf.ID))
			out.Workflow(wf)
			return nil
		},
	}

	cmd.Flags().StringVar(&graphFile, "graph", "", "Path to a JSON file with the new graph")
	cmd.Flags().StringVar(&active, "active", "", "Set active state (true/false)")

	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteWorkflow(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}
