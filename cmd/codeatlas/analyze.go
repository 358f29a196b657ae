package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vosbek/codeatlas/internal/config"
	"github.com/vosbek/codeatlas/internal/diag"
	"github.com/vosbek/codeatlas/internal/job"
	"github.com/vosbek/codeatlas/internal/store"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "analyze <repository>",
		Short: "Analyze a repository and persist the entity graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, log, err := openEnv(opts)
			if err != nil {
				return err
			}
			defer st.Close()

			m, err := job.NewManager(cfg, st, log)
			if err != nil {
				return err
			}
			id := m.Submit(args[0])

			// First interrupt cancels cooperatively; the job still emits
			// a graph for the files it finished.
			sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-sigCtx.Done()
				_ = m.Cancel(id)
			}()

			status, err := m.Wait(context.Background(), id)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd, st, cfg, status); err != nil {
					return err
				}
			} else {
				printStatus(cmd, st, cfg, status)
			}
			if status.State == job.StateFailed {
				return fmt.Errorf("analysis failed: %s", status.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the result as JSON")
	return cmd
}

func printJSON(cmd *cobra.Command, st *store.Store, cfg *config.Config, status job.Status) error {
	payload := struct {
		Status job.Status   `json:"status"`
		Report *diag.Report `json:"report,omitempty"`
	}{Status: status}
	if status.SnapshotID != "" {
		diags, err := st.DiagnosticsFor(status.SnapshotID)
		if err != nil {
			return err
		}
		payload.Report = diag.Summarize(diags, cfg.DiagnosticSample)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func openEnv(opts *rootOptions) (*config.Config, *store.Store, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "codeatlas.db"
	}
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.OpenPath(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, st, log, nil
}

func printStatus(cmd *cobra.Command, st *store.Store, cfg *config.Config, status job.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:     %s\n", status.State)
	fmt.Fprintf(out, "files:     %d/%d\n", status.FilesProcessed, status.FilesTotal)
	if status.SnapshotID != "" {
		fmt.Fprintf(out, "snapshot:  %s\n", status.SnapshotID)
	}
	if status.SnapshotID == "" || status.Diagnostics == 0 {
		return
	}

	diags, err := st.DiagnosticsFor(status.SnapshotID)
	if err != nil {
		fmt.Fprintf(out, "diagnostics unavailable: %v\n", err)
		return
	}
	report := diag.Summarize(diags, cfg.DiagnosticSample)
	fmt.Fprintf(out, "diagnostics: %d total", report.Total)
	for _, sev := range []diag.Severity{diag.SeverityError, diag.SeverityWarning, diag.SeverityInfo} {
		if n := report.CountsBySeverity[sev]; n > 0 {
			fmt.Fprintf(out, " %s=%d", sev, n)
		}
	}
	fmt.Fprintln(out)

	cats := make([]string, 0, len(report.SampleByCategory))
	for c := range report.SampleByCategory {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		for _, d := range report.SampleByCategory[diag.Category(c)] {
			loc := d.FilePath
			if loc == "" {
				loc = "-"
			}
			fmt.Fprintf(out, "  [%s/%s] %s: %s\n", c, d.Severity, loc, d.Message)
		}
	}
}
