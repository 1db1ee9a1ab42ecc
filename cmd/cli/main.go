package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/himanishpuri/AnchorSync/internal/config"
	"github.com/himanishpuri/AnchorSync/pkg/logger"
	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	dbPath     string
	verbose    bool

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "anchorsync",
	Short: "Place, save and re-locate spatial anchors",
	Long: `anchorsync drives an anchor session against the in-process anchoring
service: place an object, save it as a cloud anchor once enough of the
environment is captured, and locate it again in a later session.

Anchors are persisted in a local SQLite database shared with anchorsync-server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.Storage.DBPath = dbPath
		}

		log = logger.GetLogger()
		log.SetLevel(logger.ParseLevel(cfg.Logging.Level))
		if verbose {
			log.SetLevel(logger.DEBUG)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", getEnvOrDefault("ANCHORSYNC_CONFIG", "anchorsync.yaml"), "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the SQLite database file (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(demoCmd, saveCmd, locateCmd, listCmd, deleteCmd, purgeCmd, configCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
