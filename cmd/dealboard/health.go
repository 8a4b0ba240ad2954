package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check server health",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := dealsClient.Health(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, map[string]string{"status": status, "url": cfg.HTTPURL})
		}
		fmt.Printf("%s: %s\n", cfg.HTTPURL, status)
		return nil
	},
}
