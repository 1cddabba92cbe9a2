// Package cli implements the zeromv command-line interface.
package cli

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zeromv/zeromv/pkg/buildinfo"
	"github.com/zeromv/zeromv/pkg/errors"
	"github.com/zeromv/zeromv/pkg/observability"
)

// appName is the application name used for display.
const appName = "zeromv"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// Process exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitConfig   = 2
	ExitCanceled = 130
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
	getenv     func(string) string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		getenv: lookupEnv,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "zeromv turns one photo into six consistent views",
		Long: `zeromv runs a multi-view diffusion model on a single input photo and
writes the six rendered viewpoints as predictably named tiles, together with
the raw composite, an optional contact sheet and a JSON manifest.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := LogInfo
			if c.verbose {
				level = LogDebug
				observability.SetPipelineHooks(logHooks{c.Logger})
				observability.SetCacheHooks(logHooks{c.Logger})
				observability.SetHTTPHooks(logHooks{c.Logger})
			}
			c.SetLogLevel(level)
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default: ./config.yaml, ./config.yml or ./config.toml)")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.splitCommand())
	root.AddCommand(c.sheetCommand())
	root.AddCommand(c.deviceCommand())
	root.AddCommand(c.historyCommand())
	root.AddCommand(c.browseCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case stderrors.Is(err, context.Canceled):
		return ExitCanceled
	case errors.Is(err, errors.ErrCodeConfig):
		return ExitConfig
	}
	return ExitFailure
}
