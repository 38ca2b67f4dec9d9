package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/export"
	"github.com/tanq16/chunkrelay/internal/output"
)

func newExportCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "export [--output FILE]",
		Short: "Print queued chunks as MC:<base64>: lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// keep stdout clean for the lines themselves
			output.Out = os.Stderr
			var w io.Writer = os.Stdout
			if outputPath != "" {
				f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return fail("Could not open export file", err)
				}
				defer f.Close()
				w = f
			}
			ctx, cancel := signalContext()
			defer cancel()
			q, err := openStore()
			if err != nil {
				return err
			}
			defer q.Close()

			e, err := export.NewExporter(q, w, cfg.Uplink.ChunkSize)
			if err != nil {
				return fail("Invalid export configuration", err)
			}
			n, err := e.Dump(ctx)
			if err != nil {
				return fail(fmt.Sprintf("Export stopped after %d line(s)", n), err)
			}
			if n == 0 {
				output.PrintInfo("Nothing to export")
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("Exported %d chunk(s)", n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Append lines to this file instead of stdout")
	return cmd
}
