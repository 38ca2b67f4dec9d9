package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/output"
	"github.com/tanq16/chunkrelay/internal/uplink"
)

func newPostCmd() *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "post [--channel http|s3|export]",
		Short: "Drain queued diagnostic chunks to the collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if channel == "" {
				channel = cfg.Uplink.Channel
			}
			if channel == "export" {
				output.Out = os.Stderr
			}
			ctx, cancel := signalContext()
			defer cancel()
			q, err := openStore()
			if err != nil {
				return err
			}
			defer q.Close()

			ch, err := buildChannel(ctx, channel)
			if err != nil {
				return fail("Invalid uplink channel", err)
			}
			driver, err := uplink.NewDriver(q, ch, cfg.Uplink.ChunkSize)
			if err != nil {
				return fail("Invalid uplink configuration", err)
			}
			res, err := driver.Run(ctx)
			switch {
			case err != nil:
				return fail(fmt.Sprintf("Uplink stopped after %d chunk(s)", res.Chunks), err)
			case res.Status == uplink.StatusNothingToSend:
				output.PrintInfo("Nothing to send")
			default:
				output.PrintSuccess(fmt.Sprintf("Sent %d chunk(s), %s via %s", res.Chunks, output.FormatBytes(uint64(res.Bytes)), ch.Name()))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&channel, "channel", "", "Outbound channel (defaults to uplink.channel)")
	return cmd
}
