// Command proctorctl manages the proctoring store and replays recorded
// exams offline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xela07ax/proctor/internal/app"
	"github.com/xela07ax/proctor/internal/infra"
)

// Version is the application version.
const Version = "0.3.0"

var (
	configPath string
	sqlitePath string

	cfg    *infra.Config
	logger *zap.Logger
	// DB is shared by the subcommands
	DB app.Store
)

var rootCmd = &cobra.Command{
	Use:           "proctorctl",
	Short:         "Exam proctoring toolbox",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = infra.LoadConfig(configPath)
		if err != nil {
			return err
		}
		// --db always means a local sqlite file
		if sqlitePath != "" {
			cfg.Database.Driver = "sqlite"
			cfg.Database.Path = sqlitePath
		}
		logger, err = infra.NewLogger(cfg.Logger)
		if err != nil {
			return err
		}
		DB, err = app.OpenStore(cmd.Context(), cfg.Database)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			DB.Close()
		}
		if logger != nil {
			logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	// no store needed
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "db", "", "use this SQLite file instead of the configured database")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
