package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subsai/batch"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newRunCommand(cc *commandContext) *cobra.Command {
	var (
		source  string
		targets []string
		formats []string
		upload  bool
		folder  string
	)

	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Process media files once and print the results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			collab, err := cc.newDeps(ctx, cc.cfg)
			if err != nil {
				return err
			}
			defer collab.close()

			proc, err := batch.NewProcessor(cc.cfg, collab.deps)
			if err != nil {
				return err
			}

			opts := batch.JobOptions{
				SourceLanguage:  source,
				TargetLanguages: targets,
				OutputFormats:   formats,
				ExportOptions:   batch.ExportOptions{Upload: upload, Folder: folder},
			}
			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("inspect file: %w", err)
				}
				if info.IsDir() {
					return fmt.Errorf("%s is a directory", path)
				}
				if _, err := proc.AddJob(path, info.Name(), info.Size(), opts); err != nil {
					return fmt.Errorf("%s: %w", info.Name(), err)
				}
			}

			proc.Start(ctx)
			proc.Wait()

			jobs := proc.AllJobs()
			fmt.Fprintln(cmd.OutOrStdout(), renderResults(jobs))
			for _, j := range jobs {
				if j.Status == batch.StatusFailed {
					return errJobsFailed
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", batch.AutoLanguage, "Source language, or auto to detect")
	cmd.Flags().StringSliceVar(&targets, "target", []string{batch.TranscribeTarget}, "Target languages; transcribe keeps the original")
	cmd.Flags().StringSliceVar(&formats, "format", []string{"srt"}, "Output formats")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload artifacts to the configured storage")
	cmd.Flags().StringVar(&folder, "folder", "", "Storage folder for uploads")
	return cmd
}

func renderResults(jobs []*batch.Job) string {
	headers := []string{"File", "Size", "Status", "Took", "Outputs"}
	aligns := []columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		took := ""
		if !j.StartedAt.IsZero() && !j.CompletedAt.IsZero() {
			took = j.CompletedAt.Sub(j.StartedAt).Round(time.Millisecond).String()
		}
		outputs := make([]string, 0, len(j.Results))
		for _, r := range j.Results {
			name := r.Filename
			if r.Uploaded {
				name += " (uploaded)"
			}
			outputs = append(outputs, name)
		}
		status := string(j.Status)
		if j.Error != "" {
			status += ": " + j.Error
		}
		rows = append(rows, []string{
			j.DisplayName,
			humanize.Bytes(uint64(j.ByteSize)),
			status,
			took,
			strings.Join(outputs, ", "),
		})
	}
	return renderTable(headers, rows, aligns)
}
