package main

import (
	"github.com/spf13/cobra"

	"github.com/ryanmaclean/tundra/internal/tui"
)

var statusRoot string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the live task-board dashboard",
	Long: `Show the live task-board dashboard. Attaches to a fresh, empty
deployment's event bus; tasks populate the board once a "tundra run"
invocation against the same root is driving them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dep, err := newDeployment(statusRoot)
		if err != nil {
			return err
		}
		return tui.Run(dep.bus, snapshotFunc(dep))
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusRoot, "root", ".", "project root for context steering")
	rootCmd.AddCommand(statusCmd)
}
