// Package cli implements the finquest command line.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/finquest-app/finquest/internal/daemon"
	"github.com/finquest-app/finquest/internal/logging"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "finquest",
	Short: "Personal-finance quests, one step at a time",
	Long: `finquest simulates personal-finance quests. Each step applies the
actions you chose to your bank account, joy and free time, pays out
finished investments and moves time forward.

Run "finquest serve" for the HTTP API, or "finquest simulate" to replay
a plan from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfigPath(), "Path to config.toml")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
}

// Execute runs the root command.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	return rootCmd.Execute()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func defaultConfigPath() string {
	if env := os.Getenv("FINQUEST_HOME"); env != "" {
		return filepath.Join(env, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".finquest", "config.toml")
}

// loadConfig reads --config and applies --log-level.
func loadConfig(cmd *cobra.Command) (daemon.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := daemon.LoadConfig(path)
	if err != nil {
		return cfg, nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		if !logging.ValidLevel(lvl) {
			return cfg, nil, fmt.Errorf("unknown log level %q", lvl)
		}
		cfg.Logging.Level = lvl
	}
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	return cfg, logger, nil
}

// openDaemon wires the services without starting the HTTP server.
func openDaemon(cmd *cobra.Command) (*daemon.Daemon, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg, logger, version)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
