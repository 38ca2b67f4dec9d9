package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/collector"
)

func newServeCmd() *cobra.Command {
	var listen, image, imageVersion string

	cmd := &cobra.Command{
		Use:   "serve [--listen ADDR] [--image FILE --image-version VERSION]",
		Short: "Run a local collector for bench testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = cfg.Serve.Listen
			}
			if !cmd.Flags().Changed("image") {
				image = cfg.Serve.Image
			}
			if !cmd.Flags().Changed("image-version") {
				imageVersion = cfg.Serve.ImageVersion
			}
			srv, err := collector.New(collector.Options{
				ProjectKey:   cfg.Serve.ProjectKey,
				ImagePath:    image,
				ImageVersion: imageVersion,
				MaxDevices:   cfg.Serve.MaxDevices,
			})
			if err != nil {
				return fail("Could not start collector", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			if err := srv.ListenAndServe(ctx, listen); err != nil {
				return fail("Collector stopped", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address")
	cmd.Flags().StringVar(&image, "image", "", "Firmware image to offer")
	cmd.Flags().StringVar(&imageVersion, "image-version", "", "Version of the offered image")
	return cmd
}
