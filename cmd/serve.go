package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the RAGChat API server with the specified configuration.
With --with-worker (or worker.enabled) a chat worker runs in the same process.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()

	// Server flags
	flags.StringP("host", "H", "0.0.0.0", "server host")
	flags.IntP("port", "p", 8080, "server port")
	flags.String("mode", "release", "server mode (debug/release/test)")

	// Worker flags
	flags.Bool("with-worker", false, "run a chat worker inside the API process")

	// Log flags
	flags.String("log-level", "info", "log level (trace/debug/info/warn/error/fatal)")
	flags.String("log-format", "console", "log format (json/console)")

	// Bind flags to viper
	_ = viper.BindPFlag("server.host", flags.Lookup("host"))
	_ = viper.BindPFlag("server.port", flags.Lookup("port"))
	_ = viper.BindPFlag("server.mode", flags.Lookup("mode"))
	_ = viper.BindPFlag("worker.enabled", flags.Lookup("with-worker"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	// Validate config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Build dependencies
	container, err := server.NewContainer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init dependencies: %w", err)
	}
	defer container.Close(context.Background())

	srv := server.New(cfg, container)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", addr).
			Str("mode", cfg.Server.Mode).
			Msg("starting server")
		return srv.Run(ctx, addr)
	})
	if cfg.Worker.Enabled {
		g.Go(func() error {
			return container.Worker.Run(ctx)
		})
	}
	return g.Wait()
}
