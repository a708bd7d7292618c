package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	pidFile  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "turbogenius",
	Short: "turbogenius - streaming chat gateway",
	Long: `turbogenius is a multi-session chat gateway. Clients create sessions,
send a prompt over a websocket and receive the response token by token from a
local or hosted completion engine.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.turbogenius/turbogenius.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "", "PID file (default is $HOME/.turbogenius/turbogenius.pid)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func getPIDFilePath() string {
	if pidFile != "" {
		return pidFile
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "turbogenius.pid")
	}
	return filepath.Join(home, ".turbogenius", "turbogenius.pid")
}
