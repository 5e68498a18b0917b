package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"royalty-reconciliation-backend/internal/config"
	"royalty-reconciliation-backend/internal/logger"
	"royalty-reconciliation-backend/internal/models"
	"royalty-reconciliation-backend/internal/repository"
	"royalty-reconciliation-backend/internal/services/mapping"
	"royalty-reconciliation-backend/internal/services/matching"
	service "royalty-reconciliation-backend/internal/services/reconciliation"
)

type stageOptions struct {
	file        string
	exportPath  string
	selection   string
	commit      bool
	key         string
	notes       string
	performedBy string
	asJSON      bool
}

func newStageCmd() *cobra.Command {
	var opts stageOptions

	cmd := &cobra.Command{
		Use:   "stage <file>",
		Short: "Parse, validate and match a statement file",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.selection {
			case "all", "none", string(models.MatchStatusMatched), string(models.MatchStatusPartial), string(models.MatchStatusUnmatched):
			default:
				return fmt.Errorf("invalid --select %q: want matched, partial, unmatched, all or none", opts.selection)
			}
			if opts.commit && opts.selection == "none" {
				return fmt.Errorf("--commit needs a --select other than none")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.file = args[0]
			return runStage(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.exportPath, "export", "", "Write the selected records as CSV to this path")
	cmd.Flags().StringVar(&opts.selection, "select", "all", "Records to select: matched, partial, unmatched, all or none")
	cmd.Flags().BoolVar(&opts.commit, "commit", false, "Commit the selection to the ledger (requires DATABASE_DSN)")
	cmd.Flags().StringVar(&opts.key, "idempotency-key", "", "Idempotency key for --commit (default: random)")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "Notes stored on the committed batch")
	cmd.Flags().StringVar(&opts.performedBy, "performed-by", os.Getenv("USER"), "Operator recorded in the commit log")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the summary as JSON")

	return cmd
}

func runStage(cmd *cobra.Command, opts stageOptions) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{
		Writer:      cmd.ErrOrStderr(),
		Format:      cfg.Logger.Format,
		Environment: cfg.App.Environment,
		Level:       cfg.Logger.Level,
	})

	var (
		catalog matching.Catalog
		ledger  service.Ledger
	)
	if cfg.Database.DSN != "" {
		db, err := config.InitDB(cfg.Database)
		if err != nil {
			return err
		}
		if cfg.Database.AutoMigrate {
			if err := repository.AutoMigrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		catalog = repository.NewCatalog(db)
		ledger = repository.NewBatchRepository(db)
	} else if opts.commit {
		return fmt.Errorf("--commit: %w", config.ErrNoDSN)
	} else {
		log.Warn("no database configured, matching against an empty catalog")
	}

	svc := service.NewReconciliationService(nil, catalog, ledger, service.Options{
		Mapping: mapping.Options{
			StatementSource: cfg.Pipeline.StatementSource,
			YieldEvery:      cfg.Pipeline.YieldEvery,
			YieldPause:      cfg.Pipeline.YieldPause,
		},
		Logger: log,
	})
	if catalog != nil {
		if err := svc.ReloadCatalog(ctx); err != nil {
			return err
		}
	}

	f, err := os.Open(opts.file)
	if err != nil {
		return err
	}
	defer f.Close()

	summary, err := svc.Stage(ctx, filepath.Base(opts.file), f)
	if err != nil {
		return err
	}

	if opts.selection != "none" {
		req := service.SelectionRequest{All: true, Selected: true}
		if opts.selection != "all" {
			req.Status = models.MatchStatus(opts.selection)
		}
		stats, err := svc.Select(summary.SessionID, req)
		if err != nil {
			return err
		}
		summary.Stats = stats
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}

	if opts.exportPath != "" {
		if err := exportTo(svc, summary, opts.exportPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", summary.Stats.Selected, opts.exportPath)
	}

	if opts.commit {
		batch, err := svc.Commit(ctx, summary.SessionID, service.CommitRequest{
			IdempotencyKey: opts.key,
			Notes:          opts.notes,
			PerformedBy:    opts.performedBy,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "committed batch %s: %d records, total %s (%s to %s)\n",
			batch.ID, batch.RecordCount, batch.TotalGrossAmount.StringFixed(2), batch.PeriodStart, batch.PeriodEnd)
	}
	return nil
}

func exportTo(svc *service.ReconciliationService, summary *service.Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := svc.Export(summary.SessionID, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printSummary(w io.Writer, s *service.Summary) {
	st := s.Stats
	fmt.Fprintf(w, "%s: %d rows, %d staged, %d invalid\n", s.Filename, s.TotalRows, st.Total, len(s.Invalid))
	fmt.Fprintf(w, "  matched %d  partial %d  unmatched %d\n", st.Matched, st.Partial, st.Unmatched)
	fmt.Fprintf(w, "  total gross %s, selected %d (%s)\n",
		st.TotalGross.StringFixed(2), st.Selected, st.SelectedGross.StringFixed(2))
	if st.PeriodFallbacks > 0 {
		fmt.Fprintf(w, "  %d records use the default period\n", st.PeriodFallbacks)
	}
	for _, row := range s.Invalid {
		fmt.Fprintf(w, "  line %d: %s\n", row.Line, strings.Join(row.Errors, "; "))
	}
}
