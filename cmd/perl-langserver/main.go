package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ganezdragon/perl-language-server/pkg/lsp"
)

var version = "0.1.0"

func main() {
	var logLevel string
	var watch bool

	root := &cobra.Command{
		Use:     "perl-langserver",
		Short:   "Language server for Perl over stdio",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)
			var opts []lsp.Option
			if watch {
				opts = append(opts, lsp.WithWatcher())
			}
			svc, err := lsp.NewService(log, opts...)
			if err != nil {
				return err
			}
			return svc.RunStdio()
		},
	}
	root.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.Flags().BoolVar(&watch, "watch", false, "watch the workspace for changes made outside the editor")

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
