package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/output"
	"github.com/tanq16/chunkrelay/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [dir]",
		Short: "Remove part files left by interrupted OTA sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := cfg.OTA.OutputDir
			if len(args) > 0 {
				dir = args[0]
			}
			if err := utils.CleanTemp(dir); err != nil {
				return fail("Error cleaning up temporary files", err)
			}
			output.PrintSuccess("Temporary files cleaned up")
			return nil
		},
	}
}
