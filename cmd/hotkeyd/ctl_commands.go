package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/hotkeyd/internal/auth"
	"github.com/loykin/hotkeyd/internal/config"
	"github.com/loykin/hotkeyd/pkg/client"
)

// TokenEnv supplies the bearer token when --token is not given.
const TokenEnv = "HOTKEYD_TOKEN"

func createCtlCommand() *cobra.Command {
	f := &CtlFlags{}
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a running daemon through its API",
		Long: `Query and control a running hotkeyd through the control API
(global_settings.server.listen).

Examples:
  hotkeyd ctl list
  hotkeyd ctl toggle Notes --api-url=https://127.0.0.1:8765/api --ca-cert=tls/tls_ca.crt
  HOTKEYD_TOKEN=... hotkeyd ctl stop Backup`,
	}
	cmd.PersistentFlags().StringVar(&f.APIUrl, "api-url", client.DefaultConfig().BaseURL, "daemon API base URL")
	cmd.PersistentFlags().DurationVar(&f.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	cmd.PersistentFlags().StringVar(&f.Token, "token", "", "bearer token (default $"+TokenEnv+")")
	cmd.PersistentFlags().StringVar(&f.CACert, "ca-cert", "", "CA certificate for HTTPS")
	cmd.PersistentFlags().BoolVar(&f.Insecure, "insecure", false, "skip TLS certificate verification")
	cmd.PersistentFlags().BoolVar(&f.JSON, "json", false, "print raw JSON")

	nameArg := func(use, short string, run func(context.Context, io.Writer, *client.Client, string, bool) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " NAME",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := newClient(*f)
				if err != nil {
					return err
				}
				return run(cmd.Context(), cmd.OutOrStdout(), c, args[0], f.JSON)
			},
		}
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List modules and their running instances",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := newClient(*f)
				if err != nil {
					return err
				}
				return ctlList(cmd.Context(), cmd.OutOrStdout(), c, f.JSON)
			},
		},
		nameArg("status", "Show one module", ctlStatus),
		nameArg("run", "Apply the run action to a module", ctlRun),
		nameArg("toggle", "Apply the toggle action to a module", ctlToggle),
		nameArg("stop", "Stop every instance of a module", ctlStop),
	)
	return cmd
}

func newClient(f CtlFlags) (*client.Client, error) {
	token := f.Token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}
	return client.New(client.Config{
		BaseURL:  f.APIUrl,
		Timeout:  f.APITimeout,
		Token:    token,
		CACert:   f.CACert,
		Insecure: f.Insecure,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printModule(w io.Writer, m client.Module) {
	state := "stopped"
	if m.Running {
		state = "running"
	}
	if !m.Enabled {
		state = "disabled"
	}
	_, _ = fmt.Fprintf(w, "%-24s %-12s %-8s %s\n", m.Name, m.Kind, state, m.Hotkey)
	for _, in := range m.Instances {
		line := fmt.Sprintf("  pid=%d started=%s log=%s", in.PID, in.StartedAt.Format(time.RFC3339), in.LogPath)
		if in.Usage != nil {
			line += fmt.Sprintf(" cpu=%.1f%% rss=%dKiB", in.Usage.CPUPercent, in.Usage.MemoryRSS/1024)
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

func ctlList(ctx context.Context, w io.Writer, c *client.Client, asJSON bool) error {
	mods, err := c.List(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, mods)
	}
	for _, m := range mods {
		printModule(w, m)
	}
	return nil
}

func ctlStatus(ctx context.Context, w io.Writer, c *client.Client, name string, asJSON bool) error {
	m, err := c.Get(ctx, name)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, m)
	}
	printModule(w, m)
	return nil
}

func printOutcome(w io.Writer, out client.Outcome, asJSON bool) error {
	if asJSON {
		return printJSON(w, out)
	}
	switch {
	case out.PID > 0:
		_, _ = fmt.Fprintf(w, "%s: %s (pid %d)\n", out.Module, out.Result, out.PID)
	case out.Stop != "":
		_, _ = fmt.Fprintf(w, "%s: %s (%s)\n", out.Module, out.Result, out.Stop)
	default:
		_, _ = fmt.Fprintf(w, "%s: %s\n", out.Module, out.Result)
	}
	return nil
}

func ctlRun(ctx context.Context, w io.Writer, c *client.Client, name string, asJSON bool) error {
	out, err := c.Run(ctx, name)
	if err != nil {
		return err
	}
	return printOutcome(w, out, asJSON)
}

func ctlToggle(ctx context.Context, w io.Writer, c *client.Client, name string, asJSON bool) error {
	out, err := c.Toggle(ctx, name)
	if err != nil {
		return err
	}
	return printOutcome(w, out, asJSON)
}

func ctlStop(ctx context.Context, w io.Writer, c *client.Client, name string, asJSON bool) error {
	st, err := c.Stop(ctx, name)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, st)
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", st.Module, st.Outcome)
	return nil
}

func createTokenCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &TokenFlags{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the control API",
		Long: `Sign a token with global_settings.server.auth.secret from the config file.

Roles: admin, operator (read and control), viewer (read only).

Examples:
  hotkeyd token --subject laptop --role operator
  hotkeyd token --subject grafana --role viewer --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.ConfigPath = globalFlags.ConfigPath
			return cmdToken(cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Subject, "subject", "cli", "token subject")
	cmd.Flags().StringSliceVar(&f.Roles, "role", []string{auth.RoleOperator}, "roles granted by the token")
	cmd.Flags().DurationVar(&f.TTL, "ttl", 0, "token lifetime (default server.auth.token_ttl)")
	return cmd
}

func cmdToken(w io.Writer, f TokenFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	for _, r := range f.Roles {
		switch r {
		case auth.RoleAdmin, auth.RoleOperator, auth.RoleViewer:
		default:
			return fmt.Errorf("unknown role %q", r)
		}
	}
	svc, err := auth.NewService(cfg.Global.Server.Auth)
	if err != nil {
		return err
	}
	tok, err := svc.Issue(f.Subject, f.Roles, f.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, tok.Value)
	return err
}
