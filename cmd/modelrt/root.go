package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"modelrt/internal/config"
)

var (
	configPath string
	logLevel   string
	logJSON    bool

	// Set by PersistentPreRunE.
	cfg config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "modelrt",
	Short: "Local native model runtime with session leasing",
	Long: `modelrt loads one native model per process, leases a bounded number of
inference sessions against it and streams generated tokens over HTTP.

Examples:
  modelrt serve --model ~/models/tinyllama-1.1b-chat.Q4_K_M.gguf
  modelrt check ~/models/tinyllama-1.1b-chat.Q4_K_M.gguf
  modelrt run ~/models/tinyllama-1.1b-chat.Q4_K_M.gguf --prompt "Hello"`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = c
		}
		lvl := logLevel
		if lvl == "" {
			lvl = cfg.LogLevel
		}
		if v := os.Getenv("MODELRT_LOG_LEVEL"); v != "" && logLevel == "" {
			lvl = v
		}
		log = newLogger(cmd.ErrOrStderr(), lvl, logJSON)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// newLogger builds the process logger; console output unless json is set.
func newLogger(w io.Writer, level string, json bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Execute runs the root command with SIGINT/SIGTERM cancelling its context.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (.yaml, .json or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(
		newServeCmd(),
		newCheckCmd(),
		newRunCmd(),
		newCapsCmd(),
		newOpenAPICmd(),
	)
}
