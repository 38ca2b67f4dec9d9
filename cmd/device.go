package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/output"
)

func newDeviceInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device-info",
		Short: "Print the identity reported to the collector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output.PrintHeader("Device")
			rows := [][2]string{
				{"serial", cfg.Device.Serial},
				{"hardware", cfg.Device.HardwareVersion},
				{"software type", cfg.Device.SoftwareType},
				{"software version", cfg.Device.SoftwareVersion},
				{"collector", cfg.Collector.BaseURL},
				{"uplink", fmt.Sprintf("%s, %d byte chunks", cfg.Uplink.Channel, cfg.Uplink.ChunkSize)},
				{"ota buffer", fmt.Sprintf("%d bytes", cfg.OTA.BufferSize)},
			}
			for _, row := range rows {
				output.PrintDetail(fmt.Sprintf("  %-17s %s", row[0], valueOr(row[1], output.FDebug("unset"))))
			}
			return nil
		},
	}
}
