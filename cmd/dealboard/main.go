// Command dealboard is the pipeline board CLI and server.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alfredjeanlab/dealboard/internal/client"
	"github.com/alfredjeanlab/dealboard/internal/config"
	"github.com/alfredjeanlab/dealboard/internal/ui"
	"github.com/spf13/cobra"
)

// settings is the identity and endpoint a command runs with.
type settings struct {
	HTTPURL   string
	Token     string
	NATSURL   string
	CompanyID int64
	UserID    int64
	ReadOnly  bool
}

const defaultHTTPURL = "http://localhost:8080"

// resolveDefaults layers environment variables over the active remote
// profile over built-in defaults. Flags are applied on top by cobra.
func resolveDefaults(getenv func(string) string, remote config.Remote) settings {
	s := settings{
		HTTPURL:   remote.URL,
		Token:     remote.Token,
		NATSURL:   remote.NATSURL,
		CompanyID: remote.CompanyID,
		UserID:    remote.UserID,
		ReadOnly:  remote.ReadOnly,
	}
	if v := getenv("DEALBOARD_HTTP_URL"); v != "" {
		s.HTTPURL = v
	}
	if v := getenv("DEALBOARD_TOKEN"); v != "" {
		s.Token = v
	}
	if v := getenv("DEALBOARD_NATS_URL"); v != "" {
		s.NATSURL = v
	}
	if v, err := strconv.ParseInt(getenv("DEALBOARD_COMPANY"), 10, 64); err == nil {
		s.CompanyID = v
	}
	if v, err := strconv.ParseInt(getenv("DEALBOARD_USER"), 10, 64); err == nil {
		s.UserID = v
	}
	if s.HTTPURL == "" {
		s.HTTPURL = defaultHTTPURL
	}
	return s
}

// activeRemote returns the active profile, or the zero Remote when none is
// configured or the file cannot be read.
func activeRemote() config.Remote {
	path, err := config.RemotesPath()
	if err != nil {
		return config.Remote{}
	}
	cfg, err := config.LoadRemotes(path)
	if err != nil {
		return config.Remote{}
	}
	r, _ := cfg.ActiveRemote()
	return r
}

var (
	cfg        settings
	jsonOutput bool
	noColor    bool

	dealsClient client.DealsClient
)

var rootCmd = &cobra.Command{
	Use:           "dealboard <command>",
	Short:         "Pipeline board for CRM deals",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetColor(!noColor && !jsonOutput && ui.ShouldUseColor())
		dealsClient = client.NewHTTPClient(cfg.HTTPURL, cfg.Token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dealsClient != nil {
			dealsClient.Close()
		}
	},
}

// requireCompany fails commands that act on a board without one.
func requireCompany() error {
	if cfg.CompanyID <= 0 {
		return fmt.Errorf("no company set; pass --company or configure a remote with company_id")
	}
	return nil
}

func init() {
	d := resolveDefaults(os.Getenv, activeRemote())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.HTTPURL, "http-url", d.HTTPURL, "server URL")
	pf.StringVar(&cfg.Token, "token", d.Token, "bearer token")
	pf.StringVar(&cfg.NATSURL, "nats-url", d.NATSURL, "NATS URL for live updates")
	pf.Int64Var(&cfg.CompanyID, "company", d.CompanyID, "company whose pipeline to show")
	pf.Int64Var(&cfg.UserID, "user", d.UserID, "acting user id recorded with stage moves")
	pf.BoolVar(&cfg.ReadOnly, "read-only", d.ReadOnly, "view the board without permission to move deals")
	pf.BoolVar(&jsonOutput, "json", false, "output as JSON")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "board", Title: "Board:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Board
	rootCmd.AddCommand(boardCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error:"), err)
		os.Exit(1)
	}
}
