package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"orcamento/internal/cli"
	"orcamento/internal/config"
	"orcamento/internal/core"
	"orcamento/internal/log"
	"orcamento/internal/services"
)

var errEmptyReport = errors.New("no ledger data for the selected period")

// reports is what the export commands need from the report service.
type reports interface {
	ExportCSV(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportXLSX(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportCreditsCSV(ctx context.Context, sel core.Selector) (core.Result[string], error)
	ExportSheets(ctx context.Context, sel core.Selector) (core.Result[string], error)
	Refresh(ctx context.Context) core.Result[int]
	CacheStatus() services.CacheStatus
	ClearCache(ctx context.Context) int
}

type exportFunc func(ctx context.Context, sel core.Selector) (core.Result[string], error)

// openFunc builds the report stack for one command run.
type openFunc func(ctx context.Context) (reports, *config.Config, func(), error)

type selectorFlags struct {
	fiscalYear int
	month      int
	unit       string
}

func (f *selectorFlags) register(cmd *cobra.Command) {
	now := time.Now()
	cmd.Flags().IntVarP(&f.fiscalYear, "year", "y", now.Year(), "fiscal year")
	cmd.Flags().IntVarP(&f.month, "month", "m", int(now.Month()), "reference month (1-12)")
	cmd.Flags().StringVarP(&f.unit, "unit", "u", "", "managing unit id (empty for consolidated)")
}

func (f *selectorFlags) selector(cfg *config.Config) (core.Selector, error) {
	sel := core.NewSelector(f.fiscalYear, f.month, f.unit)
	if err := sel.Validate(cfg.MinFiscalYear, cfg.MaxFiscalYear); err != nil {
		return core.Selector{}, err
	}
	return sel, nil
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(openApp)
}

func newRootCmdWith(open openFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           "orcamento-export",
		Short:         "Build and export comparative budget reports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		exportCmd("csv", "Export the comparative expense report as CSV", open,
			func(r reports) exportFunc { return r.ExportCSV }),
		exportCmd("xlsx", "Export the comparative expense report as an XLSX workbook", open,
			func(r reports) exportFunc { return r.ExportXLSX }),
		exportCmd("credits", "Export the additional credits report as CSV", open,
			func(r reports) exportFunc { return r.ExportCreditsCSV }),
		exportCmd("sheets", "Write the comparative expense report to Google Sheets", open,
			func(r reports) exportFunc { return r.ExportSheets }),
		refreshCmd(open),
		cacheCmd(open),
	)
	return root
}

func exportCmd(use, short string, open openFunc, pick func(reports) exportFunc) *cobra.Command {
	var flags selectorFlags
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			r, cfg, closeFn, err := open(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			sel, err := flags.selector(cfg)
			if err != nil {
				return err
			}
			res, err := pick(r)(ctx, sel)
			if err != nil {
				return err
			}
			switch res.Kind {
			case core.ResultSourceError:
				return fmt.Errorf("data source unavailable: %w", res.Err)
			case core.ResultEmpty:
				return errEmptyReport
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Value)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func refreshCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Drop cached reports and fetch the ledger extract again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, _, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res := r.Refresh(cmd.Context())
			if res.Kind == core.ResultSourceError {
				return fmt.Errorf("data source unavailable: %w", res.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "refreshed: %d records (%s)\n", res.Value, res.Kind)
			return nil
		},
	}
}

func cacheCmd(open openFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the report cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Print cache statistics as JSON",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r, _, closeFn, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer closeFn()
				return writeJSON(cmd.OutOrStdout(), r.CacheStatus())
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every cached entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r, _, closeFn, err := open(cmd.Context())
				if err != nil {
					return err
				}
				defer closeFn()
				fmt.Fprintf(cmd.OutOrStdout(), "removed: %d\n", r.ClearCache(cmd.Context()))
				return nil
			},
		},
	)
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func openApp(ctx context.Context) (reports, *config.Config, func(), error) {
	cli.LoadEnvFile()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}
	logger := cli.SetupLogger(cfg)

	app, err := cli.NewApp(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return app.Reports, cfg, func() {
		if err := app.Close(); err != nil {
			logger.Warn("Ledger close error", log.FieldError, err)
		}
	}, nil
}
