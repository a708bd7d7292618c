package cli

import (
	"fmt"

	"github.com/harun/turbogenius/internal/config"
	"github.com/harun/turbogenius/internal/daemon"
	"github.com/harun/turbogenius/internal/logger"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway in the foreground",
	Long: `Run the chat gateway in the foreground until SIGINT or SIGTERM.
Running streams are given the gateway shutdown timeout to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides gateway.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if cmd.Flags().Changed("port") {
		cfg.Gateway.Port = servePort
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.Options{
		ConfigPath: loader.GetConfigPath(),
		PIDFile:    getPIDFilePath(),
	})
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	d.Wait(cmd.Context())
	return nil
}
