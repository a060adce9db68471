// Package cli implements the tiercache operator command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/tiercache"
	"github.com/hupe1980/tiercache/codec"
)

// Version information set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// App represents the CLI application.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	v          *viper.Viper
	configPath string
	// valueCodec is set by openCache.
	valueCodec codec.Codec
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
		v:      newViper(),
	}

	app.root = &cobra.Command{
		Use:   "tiercache",
		Short: "Inspect and maintain a tiercache directory",
		Long: `tiercache operates on the disk tiers (warm and cold) of a cache directory.

Settings are read from --config, from tiercache.{yaml,toml,json} in the
working directory, and from TIERCACHE_* environment variables, in that order
of precedence after flags. Each command opens the cache, so it sees the
entries that survive a restart: the in-memory tier starts empty.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := app.root.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "Path to configuration file")
	flags.String("dir", "", "Root cache directory (warm and cold tiers live below it)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("codec", "", "Codec the values were written with, used by get to decode them ("+strings.Join(codec.Names(), ", ")+")")
	_ = app.v.BindPFlag("directory", flags.Lookup("dir"))
	_ = app.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = app.v.BindPFlag("codec", flags.Lookup("codec"))

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newKeyCmd(),
		app.newGetCmd(),
		app.newSetCmd(),
		app.newDeleteCmd(),
		app.newSimilarCmd(),
		app.newClearCmd(),
		app.newStatsCmd(),
		app.newHealthCmd(),
		app.newMetricsCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// openCache loads the configuration and opens the cache. The caller must
// close the returned cache.
func (a *App) openCache(extra ...tiercache.Option) (*tiercache.Cache[[]byte], error) {
	cfg, err := loadConfig(a.v, a.configPath)
	if err != nil {
		return nil, err
	}

	level, err := cfg.level()
	if err != nil {
		return nil, err
	}
	if a.valueCodec, err = cfg.valueCodec(); err != nil {
		return nil, err
	}

	opts := cfg.options(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	c, err := tiercache.New[[]byte](append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return c, nil
}

// withCache opens the cache, runs fn and closes the cache.
func (a *App) withCache(fn func(c *tiercache.Cache[[]byte]) error, extra ...tiercache.Option) error {
	c, err := a.openCache(extra...)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

func (a *App) printJSON(v any) error {
	data, err := gojson.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "tiercache version %s\n", Version)
			fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
		},
	}
}
