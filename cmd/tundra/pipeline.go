package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ryanmaclean/tundra/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Print the default workflow's topologically-sorted phase order",
	RunE: func(cmd *cobra.Command, args []string) error {
		wf := pipeline.DefaultWorkflow()
		for i, step := range wf.ExecutionOrder() {
			required := "optional"
			if step.Required {
				required = "required"
			}
			fmt.Printf("%2d. %-20s phase=%-16s timeout=%-8s %s\n", i+1, step.Name, step.Phase, step.Timeout, required)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
