package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bandsite/service/internal/bootstrap"
	"github.com/bandsite/service/internal/media"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the record of an OK media object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *bootstrap.App) error {
				obj, err := app.Media.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecord(obj, app.Media.URL(obj.ID)))
				return nil
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Stop serving a media object and remove its bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *bootstrap.App) error {
				obj, err := app.Media.Delete(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s (%s)\n", obj.ID, obj.Key)
				return nil
			})
		},
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove objects orphaned by failed metadata writes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), cmd.ErrOrStderr(), func(app *bootstrap.App) error {
				total := 0
				for {
					n, err := app.Sweeper.SweepOnce(cmd.Context())
					total += n
					if err != nil {
						return err
					}
					if n == 0 {
						break
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d orphaned objects\n", total)
				return nil
			})
		},
	}
}

func renderRecord(obj *media.MediaObject, url string) string {
	rows := [][]string{
		{"ID", obj.ID},
		{"URL", url},
		{"Key", obj.Key},
		{"Name", obj.Name},
		{"Category", string(obj.Category)},
		{"MIME type", obj.MimeType},
		{"Size", humanize.IBytes(uint64(obj.SizeBytes))},
		{"ACL", string(obj.ACL)},
		{"Status", string(obj.Status)},
		{"Hash", obj.ContentHash},
		{"Created", fmt.Sprintf("%s (%s)", obj.CreatedAt.Format("2006-01-02 15:04"), humanize.Time(obj.CreatedAt))},
	}
	if obj.Width != nil && obj.Height != nil {
		rows = append(rows, []string{"Dimensions", strconv.Itoa(*obj.Width) + "x" + strconv.Itoa(*obj.Height)})
	}
	if obj.Association != nil {
		rows = append(rows, []string{"Association", obj.Association.Kind + ":" + obj.Association.ID})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}
