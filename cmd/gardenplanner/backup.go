package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"garden-planner/internal/backup"
	"garden-planner/internal/model"
)

var (
	exportKind string
	exportDir  string
	importMode string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a backup of plants, tasks, logs, journal and photos",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := backup.ParseExportKind(exportKind)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			path, err := a.backups.ExportToFile(ctx, user, kind, exportDir)
			if err != nil {
				return err
			}
			renderPanel(cmd.OutOrStdout(), okStyle.Render("backup written"), path)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Restore a JSON backup or zip archive",
	Long: `Restore a backup produced by export.

Modes:
  merge    add records that are not stored yet, never overwrite
  replace  wipe the user's data and load the backup with fresh ids
  images   only restore the pictures of a zip archive

Without a file argument the path is asked for interactively; an empty answer
cancels the import.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := backup.ParseMode(importMode)
		if err != nil {
			return err
		}
		var path string
		if len(args) == 1 {
			path = args[0]
		}
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			pick := filePicker(afero.NewOsFs(), path, cmd.InOrStdin(), cmd.OutOrStdout())
			res, err := a.backups.Import(ctx, user, mode, pick)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Cancelled {
				fmt.Fprintln(out, mutedStyle.Render("import cancelled"))
				return nil
			}
			renderPanel(out,
				okStyle.Render("import finished ("+string(mode)+")"),
				fmt.Sprintf("plants %d, tasks %d, logs %d, journal %d, images %d",
					res.Plants, res.Tasks, res.TaskLogs, res.Journal, res.Images),
			)
			return nil
		})
	},
}

// filePicker reads the backup at path, asking for the path on in when it is
// empty. An empty answer cancels.
func filePicker(fs afero.Fs, path string, in io.Reader, out io.Writer) backup.Picker {
	return func(ctx context.Context) ([]byte, error) {
		if path == "" {
			fmt.Fprint(out, "backup file (empty to cancel): ")
			line, err := bufio.NewReader(in).ReadString('\n')
			if err != nil && err != io.EOF {
				return nil, err
			}
			path = strings.TrimSpace(line)
		}
		if path == "" {
			return nil, backup.ErrPickerCancelled
		}
		return afero.ReadFile(fs, path)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportKind, "kind", string(backup.ExportDataImages), "what to export: data, full or images")
	exportCmd.Flags().StringVar(&exportDir, "dir", ".", "directory the backup is written to")
	importCmd.Flags().StringVar(&importMode, "mode", string(backup.ModeMerge), "import mode: merge, replace or images")
}
