package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loykin/hotkeyd/internal/config"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(globalFlags),
		createCheckCommand(globalFlags),
		createKeysCommand(),
		createCtlCommand(),
		createTokenCommand(globalFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "hotkeyd",
		Short: "Hotkey-driven launcher and supervisor for scripts and apps",
		Long: `hotkeyd launches configured scripts and applications at startup or when
a global hotkey is pressed, and stops every child it started on exit.

Examples:
  hotkeyd run                          # config.json next to the binary
  hotkeyd run --config ~/.config/hotkeyd/config.yaml
  hotkeyd check --config config.json   # validate without launching anything
  hotkeyd keys                         # list special key names
  hotkeyd ctl list                     # query a running daemon`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", config.DefaultPath(), "path to the configuration file (json, toml or yaml)")
	return root
}

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	runFlags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Long: `Load the configuration, launch startup modules, listen for hotkeys and
serve the control API when configured. SIGINT or SIGTERM stops every
tracked child before exit.

Examples:
  hotkeyd run
  hotkeyd run --detach --pidfile /run/user/1000/hotkeyd.pid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runFlags.ConfigPath = globalFlags.ConfigPath
			return cmdRun(cmd.Context(), *runFlags)
		},
	}
	cmd.Flags().BoolVar(&runFlags.Detach, "detach", false, "run in the background without a console")
	cmd.Flags().StringVar(&runFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().BoolVar(&runFlags.NoConsole, "no-console", false, "log only to the manager log file")
	return cmd
}

func createCheckCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and show modules and hotkeys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdCheck(cmd.OutOrStdout(), CheckFlags{ConfigPath: globalFlags.ConfigPath})
		},
	}
}

func createKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List special key names usable inside <...>",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdKeys(cmd.OutOrStdout())
		},
	}
}
