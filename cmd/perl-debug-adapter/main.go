package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ganezdragon/perl-language-server/pkg/dap"
)

var version = "0.1.0"

func main() {
	var logLevel string

	root := &cobra.Command{
		Use:     "perl-debug-adapter",
		Short:   "Debug adapter for perl -d over stdio",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)
			return dap.NewSession(os.Stdin, os.Stdout, log).Serve()
		},
	}
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var leveler slog.Level
	if err := leveler.UnmarshalText([]byte(level)); err != nil {
		leveler = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: leveler}))
}
