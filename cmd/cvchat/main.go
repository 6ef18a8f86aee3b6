// Package main is the entry point for the cvchat CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flemzord/cvchat/internal/core"
	"github.com/flemzord/cvchat/internal/security"
	"github.com/flemzord/cvchat/pkg/app"
	"github.com/spf13/cobra"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	config    string
	knowledge string
	logLevel  string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "cvchat",
		Short:         "Chat with a CV: a role-aware answer engine for portfolio sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVarP(&flags.knowledge, "kb", "k", "", "Knowledge base file (overrides knowledge.path)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		serveCmd(flags),
		askCmd(flags),
		chatCmd(flags),
		kbCmd(),
		mcpCmd(flags),
		serviceCmd(flags),
		workerCmd(flags),
	)
	return root
}

// loadRuntime builds the engine for the one-shot commands. The config file
// is optional there; logs default to warnings only.
func loadRuntime(flags *globalFlags) (*app.Runtime, error) {
	if err := app.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, _, err := app.LoadConfig(flags.config, true)
	if err != nil {
		return nil, err
	}
	if flags.knowledge != "" {
		cfg.Knowledge.Path = flags.knowledge
	}
	cfg.Log.Level = "warn"
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	redactor := security.NewRedactor()
	logger, err := app.NewLogger(os.Stderr, cfg.Log, redactor)
	if err != nil {
		return nil, err
	}
	return app.NewRuntime(cfg, logger, redactor)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cvchat %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}
