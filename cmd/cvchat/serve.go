package main

import (
	"github.com/flemzord/cvchat/pkg/app"
	"github.com/spf13/cobra"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and every configured module",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), runParams(flags, dataDir))
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides data_dir)")
	return cmd
}

func runParams(flags *globalFlags, dataDir string) app.RunParams {
	return app.RunParams{
		ConfigPath: flags.config,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    dataDir,
	}
}
