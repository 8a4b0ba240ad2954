package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:     "history <deal-id>",
	Short:   "Show a deal's stage changes",
	GroupID: "board",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid deal id %q", args[0])
		}
		changes, err := dealsClient.GetStageHistory(cmd.Context(), dealID)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, changes)
		}
		return printHistory(os.Stdout, changes)
	},
}
