// Command dramauthctl operates a dramauth deployment: it applies schema
// migrations, invites members, sweeps expired email tokens and serves the
// metrics endpoint.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envFile    string
	version    = "dev"

	cfg    *appConfig
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dramauthctl",
	Short: "Operate the club's authentication store",
	Long: `dramauthctl runs maintenance tasks against the authentication
database: schema migrations, member invitations and the expired token sweep.

Configuration is read from an optional YAML file and DRAMAUTH_* environment
variables, e.g. DRAMAUTH_DATABASE_URL or DRAMAUTH_JWT_SECRET.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

func setup(cmd *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	loaded, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	logger, err = newLogger(cfg)
	if err != nil {
		return err
	}
	return nil
}

func newLogger(c *appConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
