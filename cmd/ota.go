package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/chunk"
	"github.com/tanq16/chunkrelay/internal/ota"
	"github.com/tanq16/chunkrelay/internal/output"
)

func newOTACmd() *cobra.Command {
	var source, outputDir, imageName, imageVersion string
	var discard bool

	cmd := &cobra.Command{
		Use:   "ota [--source collector|URL|s3://bucket/key|PATH] [--output-dir DIR]",
		Short: "Check for a firmware update and stream it through the working buffer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("source") {
				source = cfg.OTA.Source
			}
			if !cmd.Flags().Changed("output-dir") {
				outputDir = cfg.OTA.OutputDir
			}
			if !cmd.Flags().Changed("name") {
				imageName = cfg.OTA.ImageName
			}
			discard = discard || cfg.OTA.Discard
			ctx, cancel := signalContext()
			defer cancel()

			resolver, err := buildResolver(ctx, source, imageVersion)
			if err != nil {
				return fail("Invalid OTA source", err)
			}
			var sink chunk.Sink = ota.NewFileSink(outputDir, imageName)
			if discard {
				sink = ota.NewDiscardSink()
			}
			start := time.Now()
			driver, err := ota.NewDriver(make([]byte, cfg.OTA.BufferSize), ota.WithProgress(func(delivered, total int64) {
				output.PrintProgress(delivered, total, time.Since(start).Seconds())
			}))
			if err != nil {
				return fail("Invalid OTA configuration", err)
			}

			output.PrintPending(fmt.Sprintf("Checking for updates (current %s)", valueOr(cfg.Device.SoftwareVersion, "unknown")))
			res, err := driver.Run(ctx, resolver, sink)
			switch res.Status {
			case ota.StatusUpToDate:
				output.PrintSuccess("Up to date")
			case ota.StatusDeclined:
				output.PrintWarning(fmt.Sprintf("Update %s declined after %s", valueOr(res.Info.Version, "image"), output.FormatBytes(uint64(res.Delivered))))
			case ota.StatusApplied:
				msg := fmt.Sprintf("Update %s received (%s)", valueOr(res.Info.Version, "image"), output.FormatBytes(uint64(res.Delivered)))
				if fs, ok := sink.(*ota.FileSink); ok {
					msg += " " + output.FDetail(fs.Path())
				}
				output.PrintSuccess(msg)
			default:
				reason := "failed"
				switch {
				case errors.Is(err, chunk.ErrIncompleteTransfer):
					reason = "incomplete transfer"
				case chunk.TransportCode(err) != 0:
					reason = fmt.Sprintf("transport error %d", chunk.TransportCode(err))
				}
				return fail(fmt.Sprintf("Update %s", reason), err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Where to look for the image (defaults to ota.source)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory the image is written to")
	cmd.Flags().StringVarP(&imageName, "name", "n", "", "Image file name (inferred from the source if not provided)")
	cmd.Flags().StringVar(&imageVersion, "image-version", "", "Version to report for sideloaded images")
	cmd.Flags().BoolVar(&discard, "discard", false, "Stream the image without storing it")
	return cmd
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
