package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/evoapps/evotrees/internal/app"
	"github.com/evoapps/evotrees/internal/config"
)

var (
	configPath string
	verbose    bool
	resume     bool
	clearAll   bool
	qualityDB  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp loads the configuration and connects to the graph store. The caller
// must defer app.Close().
func newApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if resume {
		cfg.Import.Resume = true
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "evotrees",
	Short:        "Fold article revision histories into a content graph",
	SilenceUsage: true,
}

var importCmd = &cobra.Command{
	Use:   "import TITLE[,TITLE...]...",
	Short: "Import the revision history of one or more articles",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if clearAll {
			a.Logger.Warn("clearing all nodes and relationships")
			if err := a.Driver.Purge(ctx); err != nil {
				return fmt.Errorf("clearing graph: %w", err)
			}
		}
		if err := a.Importer.BuildSchema(ctx); err != nil {
			return err
		}

		results, err := a.Importer.ImportArticles(ctx, splitTitles(args))
		for _, r := range results {
			line := fmt.Sprintf("%-40s %-9s %d revisions", r.Title, r.Status, r.Committed)
			if r.Err != nil {
				line += ": " + r.Err.Error()
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return err
	},
}

var qualitiesCmd = &cobra.Command{
	Use:   "qualities",
	Short: "Attach quality scores from the SQLite side dataset to revisions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		report, err := a.Enrich(ctx, qualityDB)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d, missing %d\n", report.Applied, report.Missing)
		return nil
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the unique key constraints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.Importer.BuildSchema(ctx); err != nil {
			return err
		}
		a.Logger.WithFields(logrus.Fields{"backend": a.Config.Graph.Backend}).Info("schema ready")
		return nil
	},
}

// splitTitles accepts titles as separate arguments or comma separated.
func splitTitles(args []string) []string {
	var titles []string
	for _, arg := range args {
		for _, t := range strings.Split(arg, ",") {
			if t = strings.TrimSpace(t); t != "" {
				titles = append(titles, t)
			}
		}
	}
	return titles
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every committed revision")

	importCmd.Flags().BoolVar(&resume, "resume", false, "continue documents that already exist")
	importCmd.Flags().BoolVar(&clearAll, "clear-all", false, "delete the whole graph before importing")
	qualitiesCmd.Flags().StringVar(&qualityDB, "db", "", "SQLite database with the qualities table")

	rootCmd.AddCommand(importCmd, qualitiesCmd, schemaCmd)
}
