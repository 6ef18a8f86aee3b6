package main

import (
	"errors"
	"os"
	"time"

	"github.com/flemzord/cvchat/internal/chat"
	"github.com/flemzord/cvchat/internal/config"
	"github.com/flemzord/cvchat/internal/security"
	"github.com/flemzord/cvchat/modules/oracle/worker"
	"github.com/flemzord/cvchat/pkg/app"
	"github.com/spf13/cobra"
)

func workerCmd(flags *globalFlags) *cobra.Command {
	var (
		url      string
		token    string
		name     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Connect to a gateway as an answer worker",
		Long: "Dials the gateway's /ws/worker endpoint and answers forwarded queries " +
			"with a local engine built from the knowledge base the gateway sends.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.LoadEnv(); err != nil {
				return err
			}
			if token == "" {
				token = os.Getenv("CVCHAT_WORKER_TOKEN")
			}
			if token == "" {
				return errors.New("worker: --token or CVCHAT_WORKER_TOKEN is required")
			}

			level := "info"
			if flags.logLevel != "" {
				level = flags.logLevel
			}
			redactor := security.NewRedactor()
			redactor.AddLiteral(token)
			logger, err := app.NewLogger(os.Stderr, config.LogConfig{Level: level}, redactor)
			if err != nil {
				return err
			}

			client := &worker.Client{
				URL:               url,
				Token:             token,
				Name:              name,
				Version:           version,
				Oracle:            chat.NewLocalOracle(logger),
				HeartbeatInterval: interval,
				Logger:            logger,
			}
			return client.Run(cmd.Context())
		},
	}
	host, _ := os.Hostname()
	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:8080/ws/worker", "Gateway worker endpoint")
	cmd.Flags().StringVar(&token, "token", "", "Worker token (default $CVCHAT_WORKER_TOKEN)")
	cmd.Flags().StringVar(&name, "name", host, "Worker name reported to the gateway")
	cmd.Flags().DurationVar(&interval, "heartbeat", 0, "Heartbeat interval (default 30s)")
	return cmd
}
