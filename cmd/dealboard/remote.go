package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/dealboard/internal/config"
	"github.com/spf13/cobra"
)

// remotesFile resolves the profile file.
var remotesFile = config.RemotesPath

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named server profiles",
	GroupID: "system",
	// Remote subcommands only touch the local profile file.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

// updateRemotes loads the profile file, applies fn, and saves it.
func updateRemotes(fn func(*config.RemotesConfig) error) error {
	path, err := remotesFile()
	if err != nil {
		return err
	}
	cfg, err := config.LoadRemotes(path)
	if err != nil {
		return err
	}
	if err := fn(&cfg); err != nil {
		return err
	}
	return config.SaveRemotes(path, cfg)
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, url := args[0], args[1]
		f := cmd.Flags()
		r := config.Remote{URL: url}
		r.Token, _ = f.GetString("token")
		r.NATSURL, _ = f.GetString("nats")
		r.CompanyID, _ = f.GetInt64("company-id")
		r.UserID, _ = f.GetInt64("user-id")
		r.ReadOnly, _ = f.GetBool("read-only")
		r.Description, _ = f.GetString("description")

		if err := updateRemotes(func(c *config.RemotesConfig) error {
			c.Remotes[name] = r
			return nil
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", name, url)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := updateRemotes(func(c *config.RemotesConfig) error { return c.Remove(name) }); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use [name]",
	Short: "Set the active remote (no args clears it)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		if err := updateRemotes(func(c *config.RemotesConfig) error { return c.Use(name) }); err != nil {
			return err
		}
		if name == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "active remote cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", name)
		}
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := remotesFile()
		if err != nil {
			return err
		}
		cfg, err := config.LoadRemotes(path)
		if err != nil {
			return err
		}
		return listRemotes(cmd.OutOrStdout(), cfg)
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a remote (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := remotesFile()
		if err != nil {
			return err
		}
		cfg, err := config.LoadRemotes(path)
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; pass a name or run 'dealboard remote use <name>'")
		}
		r, ok := cfg.Remotes[name]
		if !ok {
			return fmt.Errorf("%w: %q", config.ErrRemoteNotFound, name)
		}

		out := cmd.OutOrStdout()
		if name == cfg.Active {
			fmt.Fprintf(out, "%s (active)\n", name)
		} else {
			fmt.Fprintln(out, name)
		}
		fmt.Fprintf(out, "  url:         %s\n", r.URL)
		if r.NATSURL != "" {
			fmt.Fprintf(out, "  nats:        %s\n", r.NATSURL)
		}
		if r.Token != "" {
			fmt.Fprintf(out, "  token:       %s\n", config.MaskToken(r.Token))
		}
		fmt.Fprintf(out, "  company:     %d\n", r.CompanyID)
		fmt.Fprintf(out, "  user:        %d\n", r.UserID)
		fmt.Fprintf(out, "  read-only:   %t\n", r.ReadOnly)
		if r.Description != "" {
			fmt.Fprintf(out, "  description: %s\n", r.Description)
		}
		return nil
	},
}

func listRemotes(out io.Writer, cfg config.RemotesConfig) error {
	if len(cfg.Remotes) == 0 {
		fmt.Fprintln(out, "no remotes configured")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tURL\tCOMPANY\tUSER\tTOKEN\tMODE")
	for _, name := range cfg.Names() {
		r := cfg.Remotes[name]
		marker := "  "
		if name == cfg.Active {
			marker = "* "
		}
		mode := "read-write"
		if r.ReadOnly {
			mode = "read-only"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%d\t%d\t%s\t%s\n",
			marker, name, r.URL, r.CompanyID, r.UserID, config.MaskToken(r.Token), mode)
	}
	return w.Flush()
}

func init() {
	f := remoteAddCmd.Flags()
	f.String("token", "", "bearer token for authentication")
	f.String("nats", "", "NATS URL for live updates")
	f.Int64("company-id", 0, "company whose pipeline this profile shows")
	f.Int64("user-id", 0, "acting user id recorded with stage moves")
	f.Bool("read-only", false, "disallow stage moves with this profile")
	f.String("description", "", "human-readable description of the remote")

	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteUseCmd)
	remoteCmd.AddCommand(remoteShowCmd)
}
