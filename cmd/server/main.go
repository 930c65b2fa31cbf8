// Command campusd runs the campus server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/campus/pkg/datastore"
	"github.com/NicolasHaas/campus/pkg/logging"
	"github.com/NicolasHaas/campus/pkg/server"
	"github.com/NicolasHaas/campus/pkg/service"
)

type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

func main() {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "campusd",
		Short: "Campus management server",
		Long: `campusd serves the campus protocol (accounts, library, store, forum
and courses) over TCP/TLS and WebSocket, backed by SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.dbPath, "db", "", "SQLite database file path (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: "+logging.LevelNames())
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		serveCmd(opts),
		seedCmd(opts),
		exportUsersCmd(opts),
		versionCmd(),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "campusd: %s\n", err)
		os.Exit(1)
	}
}

// load reads the config file, applies flag overrides and sets up logging.
func (o *rootOptions) load(cmd *cobra.Command) (server.Config, *slog.Logger, error) {
	cfg := server.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = server.LoadConfig(o.configPath); err != nil {
			return cfg, nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}

	logger, err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
	})
	if err != nil {
		return cfg, nil, fmt.Errorf("invalid logging config: %w", err)
	}
	return cfg, logger, nil
}

func openServices(cfg server.Config) (*datastore.ProviderFactory, service.Set, error) {
	db, err := datastore.NewProviderFactory(cfg.DBPath)
	if err != nil {
		return nil, service.Set{}, fmt.Errorf("open database: %w", err)
	}
	return db, service.NewSet(db), nil
}
