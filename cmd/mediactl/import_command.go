package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bandsite/service/internal/bootstrap"
	"github.com/bandsite/service/internal/media"
)

type importFlags struct {
	acl                string
	fileType           string
	association        string
	noTranscode        bool
	skipDuplicateCheck bool
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var flags importFlags
	cmd := &cobra.Command{
		Use:   "import <file>...",
		Short: "Upload local files through the media pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			items, err := readItems(args, opts)
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *bootstrap.App) error {
				results, err := app.Media.UploadBatch(cmd.Context(), items)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderImportResults(results))
				for _, res := range results {
					if res.Err != nil {
						return fmt.Errorf("%d of %d files failed", countFailed(results), len(results))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flags.acl, "acl", "", "Object ACL (private, public-read, public-read-write, authenticated-read)")
	cmd.Flags().StringVar(&flags.fileType, "type", "", "Override the derived category")
	cmd.Flags().StringVar(&flags.association, "assoc", "", "Associate with an entity, as kind:id")
	cmd.Flags().BoolVar(&flags.noTranscode, "no-transcode", false, "Store images as uploaded")
	cmd.Flags().BoolVar(&flags.skipDuplicateCheck, "skip-duplicate-check", false, "Store even if identical content exists")
	return cmd
}

func (f importFlags) options() (media.UploadOptions, error) {
	opts := media.UploadOptions{
		ACL:                media.ACL(f.acl),
		FileType:           f.fileType,
		Transcode:          !f.noTranscode,
		SkipDuplicateCheck: f.skipDuplicateCheck,
	}
	if f.association != "" {
		kind, id, ok := strings.Cut(f.association, ":")
		if !ok || kind == "" || id == "" {
			return opts, fmt.Errorf("--assoc must look like kind:id, got %q", f.association)
		}
		opts.Association = &media.Association{Kind: kind, ID: id}
	}
	return opts, nil
}

func readItems(paths []string, opts media.UploadOptions) ([]media.BatchItem, error) {
	items := make([]media.BatchItem, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		contentType := media.DetectContentType(data, "")
		item := media.BatchItem{Data: data, Key: filepath.Base(p), ContentType: contentType, Options: opts}
		item.Options.Transcode = opts.Transcode && media.Transcodable(contentType)
		items = append(items, item)
	}
	return items, nil
}

func renderImportResults(results []media.BatchResult) string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			rows = append(rows, []string{res.Key, "failed", "", "", media.PublicMessage(res.Err)})
			continue
		}
		rec := res.Result.Record
		status := "stored"
		if res.Result.IsDuplicate {
			status = "duplicate"
		}
		rows = append(rows, []string{res.Key, status, rec.ID, humanize.IBytes(uint64(rec.SizeBytes)), res.Result.URL})
	}
	return renderTable(
		[]string{"File", "Result", "ID", "Size", "URL / Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func countFailed(results []media.BatchResult) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
