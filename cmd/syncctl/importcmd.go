package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-sheet-sync/cmd/mainconfig"
	"github.com/wolfman30/clinic-sheet-sync/internal/app/bootstrap"
	"github.com/wolfman30/clinic-sheet-sync/internal/archive"
	"github.com/wolfman30/clinic-sheet-sync/internal/emrexport"
)

func newImportCmd(opts *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "import <file.xlsx>...",
		Short: "Import EMR export workbooks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			var archiver emrexport.Archiver
			if s.cfg.ArchiveBucket != "" && !opts.dryRun {
				awsCfg, err := mainconfig.LoadAWSConfig(ctx, s.cfg)
				if err != nil {
					return fmt.Errorf("load AWS config: %w", err)
				}
				archiver = archive.NewStore(mainconfig.NewS3Client(awsCfg, s.cfg), s.cfg.ArchiveBucket, s.cfg.ArchivePrefix, s.logger)
			}

			imp, err := bootstrap.BuildImporter(s.stores, archiver, s.logger)
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range args {
				res, err := imp.ImportPath(ctx, path, emrexport.Kind(kind))
				if res != nil {
					printImportResult(cmd.OutOrStdout(), res)
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", filepath.Base(path), err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(emrexport.KindOutpatient), "Export kind: outpatient|inpatient")
	return cmd
}

func printImportResult(w io.Writer, res *emrexport.Result) {
	if res.Duplicate {
		fmt.Fprintf(w, "%s: already imported (sha256 %s)\n", res.Name, shortHash(res.SHA256))
		return
	}
	fmt.Fprintf(w, "%s [%s]: rows=%d errors=%d\n", res.Name, res.Kind, res.TotalRows, len(res.RowErrors))
	switch res.Kind {
	case emrexport.KindInpatient:
		p := res.Patients
		fmt.Fprintf(w, "  patients created=%d updated=%d unchanged=%d conflicts=%d\n", p.Created, p.Updated, p.Unchanged, p.Conflicts)
	default:
		r := res.Records
		fmt.Fprintf(w, "  records created=%d updated=%d skipped=%d failed=%d\n", r.Created, r.Updated, r.Skipped, r.Failed)
	}
	for _, re := range res.RowErrors {
		fmt.Fprintf(w, "  row %d: %s\n", re.Row, re.Message)
	}
	if res.Archived != "" {
		fmt.Fprintf(w, "  archived %s\n", res.Archived)
	}
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
