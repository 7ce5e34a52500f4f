package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-sheet-sync/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-sheet-sync/internal/config"
	"github.com/wolfman30/clinic-sheet-sync/internal/syncrun"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync configured tabs into the database",
	}

	tabCmd := &cobra.Command{
		Use:   "tab <name>",
		Short: "Sync one tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, opts, func(ctx context.Context, p *bootstrap.Pipeline, tabs []syncrun.TabConfig) error {
				tab, err := findTab(tabs, args[0])
				if err != nil {
					return err
				}
				if err := p.Runtime.EnsureFresh(ctx); err != nil {
					return err
				}
				rep, err := p.Orchestrator.SyncTab(ctx, tab)
				if err != nil {
					return err
				}
				printTabReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Sync every configured tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd, opts, func(ctx context.Context, p *bootstrap.Pipeline, tabs []syncrun.TabConfig) error {
				summary, err := p.Orchestrator.SyncAll(ctx, p.Runtime, tabs)
				if summary != nil {
					for _, rep := range summary.Reports {
						printTabReport(cmd.OutOrStdout(), rep)
					}
					if summary.FailedTabs > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "failed outpatient tabs: %d\n", summary.FailedTabs)
					}
				}
				return err
			})
		},
	}

	cmd.AddCommand(tabCmd, allCmd)
	return cmd
}

func newWriteBackCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write-back <tab>",
		Short: "Write manually overridden rows back to their cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPipeline(cmd, opts, func(ctx context.Context, p *bootstrap.Pipeline, tabs []syncrun.TabConfig) error {
				tab, err := findTab(tabs, args[0])
				if err != nil {
					return err
				}
				if err := p.Runtime.EnsureFresh(ctx); err != nil {
					return err
				}
				entries, err := p.WriteBacker.Run(ctx, tab)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %d cells\n", tab.Tab, len(entries))
				for _, e := range entries {
					fmt.Fprintf(out, "  %s applied=%t %q\n", e.Cell, e.Applied, e.Text)
				}
				return nil
			})
		},
	}
}

func withPipeline(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *bootstrap.Pipeline, []syncrun.TabConfig) error) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, cmd, opts)
	if err != nil {
		return err
	}
	defer s.close()

	tabs, err := appconfig.LoadTabs(s.cfg.TabsFile)
	if err != nil {
		return err
	}
	p, err := bootstrap.BuildPipeline(ctx, bootstrap.PipelineConfig{
		App:    s.cfg,
		Stores: s.stores,
		Tabs:   tabs,
		Logger: s.logger,
	})
	if err != nil {
		return err
	}
	return fn(ctx, p, tabs)
}

// findTab matches by tab name, or by "source/tab" when names repeat across
// spreadsheets.
func findTab(tabs []syncrun.TabConfig, name string) (syncrun.TabConfig, error) {
	var found []syncrun.TabConfig
	for _, t := range tabs {
		if t.JobKey() == name {
			return t, nil
		}
		if t.Tab == name {
			found = append(found, t)
		}
	}
	switch len(found) {
	case 0:
		return syncrun.TabConfig{}, fmt.Errorf("unknown tab %q", name)
	case 1:
		return found[0], nil
	default:
		return syncrun.TabConfig{}, fmt.Errorf("tab %q is ambiguous, use source/tab", name)
	}
}

func printTabReport(w io.Writer, rep *syncrun.TabReport) {
	st := rep.Stats
	if st.Unchanged {
		fmt.Fprintf(w, "%s [%s]: unchanged, %d rows\n", rep.Tab, rep.Kind, st.Processed)
		return
	}
	fmt.Fprintf(w, "%s [%s]: processed=%d created=%d updated=%d skipped=%d failed=%d cancelled=%d\n",
		rep.Tab, rep.Kind, st.Processed, st.Created, st.Updated, st.Skipped, st.Failed, st.Cancelled)
	if st.DateFrom != "" {
		fmt.Fprintf(w, "  dates %s..%s\n", st.DateFrom, st.DateTo)
	}
	for _, ce := range st.CellErrors {
		fmt.Fprintf(w, "  cell %s: %s\n", ce.Cell, ce.Message)
	}
	for _, f := range st.RecordFailures {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
