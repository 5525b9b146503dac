package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ragchat/internal/server"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a chat worker",
	Long:  `Start a standalone worker that consumes chat jobs from the queue and answers them.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	flags := workerCmd.Flags()
	flags.String("name", "", "worker name used as queue consumer (default: hostname)")
	flags.Duration("job-timeout", 0, "per-job timeout, 0 keeps the configured value")

	_ = viper.BindPFlag("worker.name", flags.Lookup("name"))
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	if timeout, _ := cmd.Flags().GetDuration("job-timeout"); timeout > 0 {
		cfg.Worker.JobTimeout = timeout
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	container, err := server.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init dependencies: %w", err)
	}
	defer container.Close(context.Background())

	return container.Worker.Run(ctx)
}
