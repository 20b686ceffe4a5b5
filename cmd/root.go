// Package cmd defines the privacy-policy CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/app"
	"github.com/msnabiel/privacy-policy/internal/config"
	"github.com/msnabiel/privacy-policy/internal/logging"
	"github.com/msnabiel/privacy-policy/internal/scraper"
)

const shutdownTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface the commands use. Tests inject a fake through
// newApp.
type App interface {
	Logger() *zap.Logger
	Scrape(ctx context.Context, sites []string) (scraper.RunReport, error)
	Resolve(ctx context.Context, site string) (string, error)
	Extract(ctx context.Context, url string) (string, error)
	Close(ctx context.Context) error
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	cfg        config.Config
	app        App
}

// close releases the App built by the pre-run hook, if any.
func (o *rootOptions) close(ctx context.Context) error {
	if o.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := o.app.Close(ctx)
	_ = o.app.Logger().Sync()
	o.app = nil
	return err
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "privacy-policy",
		Short: "Find and extract privacy policies from company websites.",
		Long: `privacy-policy visits each website's homepage, discovers its privacy
policy link, extracts the policy text, and writes one row per site to CSV
and any configured result stores.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			opts.cfg = cfg

			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			opts.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newScrapeCmd(opts))
	cmd.AddCommand(newResolveCmd())
	cmd.AddCommand(newExtractCmd())
	return cmd
}

// applyFlagOverrides copies explicitly set scrape flags over the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		n, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Scraper.Concurrency = n
	}
	if flags.Changed("sites-file") {
		path, err := flags.GetString("sites-file")
		if err != nil {
			return err
		}
		cfg.Scraper.SitesFile = path
	}
	if flags.Changed("output-dir") {
		dir, err := flags.GetString("output-dir")
		if err != nil {
			return err
		}
		cfg.Output.Dir = dir
	}
	if noDelay, err := flags.GetBool("no-delay"); err == nil && noDelay {
		cfg.Scraper.DelayMin = 0
		cfg.Scraper.DelayMax = 0
	}
	return cfg.Validate()
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// run executes the CLI with args and always closes the App afterwards.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts := &rootOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	err := cmd.ExecuteContext(ctx)
	return errors.Join(err, opts.close(ctx))
}

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
