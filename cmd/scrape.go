package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/msnabiel/privacy-policy/internal/sites"
)

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [sites...]",
		Short: "Discover and extract privacy policies for a list of sites",
		Long: `Runs every site through policy discovery and text extraction using a
bounded worker pool. Sites come from the arguments, --sites-file, or the
scraper.sites config list, in that order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, opts, args)
		},
	}
	cmd.Flags().Int("concurrency", 4, "number of concurrent workers")
	cmd.Flags().String("sites-file", "", "file with sites (.txt, .csv, .yaml)")
	cmd.Flags().String("output-dir", "output", "directory for CSV output when storage.backend is local")
	cmd.Flags().Bool("no-delay", false, "disable the courtesy delay between sites")
	return cmd
}

func runScrape(cmd *cobra.Command, opts *rootOptions, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	list, err := sites.Resolve(args, opts.cfg.Scraper.SitesFile, opts.cfg.Scraper.Sites)
	if err != nil {
		return fmt.Errorf("load sites: %w", err)
	}
	if len(list) == 0 {
		return errors.New("no sites given: pass sites as arguments, --sites-file, or scraper.sites")
	}

	report, err := appInstance.Scrape(cmd.Context(), list)
	if err != nil {
		return err
	}
	if errors.Is(cmd.Context().Err(), context.Canceled) {
		appInstance.Logger().Warn("run interrupted, unfinished sites recorded as errors",
			zap.String("run_id", report.RunID))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d sites succeeded (%.1f%%)\n",
		report.Summary.Successful, report.Summary.Total, report.Summary.SuccessRate)
	return nil
}
