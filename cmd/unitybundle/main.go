package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/unitybundle/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	compression string
	limits      string
	workers     int
	dbPath      string
	logLevel    string
	logFormat   string
	noProgress  bool
)

var rootCmd = &cobra.Command{
	Use:   "unitybundle",
	Short: "UnityFS asset bundle transcoder and inspector",
	Long: `unitybundle decodes UnityFS asset bundles and re-encodes them with a different
payload codec, typically LZMA for distribution.

It can also print a bundle's header and directory, extract the virtual files a bundle
contains, and index bundles into a local SQLite catalog for querying.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("compression") {
			cfg.Compression = compression
		}
		if cmd.Flags().Changed("limits") {
			cfg.Limits = limits
		}
		if cmd.Flags().Changed("workers") {
			cfg.Workers = workers
		}
		if cmd.Flags().Changed("database") {
			cfg.Database = dbPath
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}

		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}

		slog.SetDefault(slog.New(handler))

		slog.Debug("Configuration",
			"compression", cfg.Compression,
			"limits", cfg.Limits,
			"workers", cfg.Workers,
			"database", cfg.Database,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is unitybundle.yaml in pwd or home)")
	rootCmd.PersistentFlags().StringVarP(&compression, "compression", "c", "", "payload codec to write (none, lzma, lz4, lz4hc)")
	rootCmd.PersistentFlags().StringVar(&limits, "limits", "", "platform size limits to enforce (pc, android)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "j", 0, "number of bundles processed in parallel")
	rootCmd.PersistentFlags().StringVarP(&dbPath, "database", "d", "", "catalog database file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
