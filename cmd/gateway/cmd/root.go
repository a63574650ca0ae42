package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/gateway/config"
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Order and position execution gateway for a broker trade bridge",
	Long: `Gateway accepts trading intents from a terminal, translates them into the
broker bridge's request shapes and executes them against the bridge.

It provides:
  - Order placement (market, limit and stop)
  - Position close, close-all and modify with endpoint fallback
  - A merged trade listing of positions, pending orders and closed trades
  - An account store and an execution journal in SQLite`,
	SilenceUsage: true,
}

var (
	configPath string
	envFile    string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML or JSON); defaults apply when unset")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "dotenv file with GATEWAY_* overrides")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// dsn adds the SQLite options needed when the account store and the journal
// share one database file.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}
