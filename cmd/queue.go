package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"github.com/tanq16/chunkrelay/internal/output"
	"github.com/tanq16/chunkrelay/internal/store"
)

func newCaptureCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "capture [FILE|-] [--kind coredump|log|metrics|trace]",
		Short: "Queue a diagnostic payload for the next uplink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := store.ParseKind(kind)
			if err != nil {
				return fail("Invalid kind", err)
			}
			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fail("Could not read payload", err)
			}
			q, err := openStore()
			if err != nil {
				return err
			}
			defer q.Close()
			seq, err := q.Enqueue(k, data)
			if err != nil {
				return fail("Could not queue payload", err)
			}
			output.PrintSuccess(fmt.Sprintf("Queued %s #%d (%s)", k, seq, output.FormatBytes(uint64(len(data)))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "log", "Payload kind")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what is waiting in the diagnostic queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openStore()
			if err != nil {
				return err
			}
			defer q.Close()
			stats, err := q.Stats()
			if err != nil {
				return fail("Could not read queue", err)
			}
			if len(stats) == 0 {
				output.PrintInfo("Queue is empty")
				return nil
			}
			kinds := make([]store.Kind, 0, len(stats))
			for k := range stats {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
			output.PrintHeader("Queued diagnostics")
			for _, k := range kinds {
				st := stats[k]
				output.PrintDetail(fmt.Sprintf("  %-9s %4d message(s) %s", k, st.Messages, output.FDebug(output.FormatBytes(uint64(st.Bytes)))))
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "clear [--kind KIND]",
		Short: "Drop queued diagnostics without sending them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var k store.Kind
			if kind != "" {
				var err error
				if k, err = store.ParseKind(kind); err != nil {
					return fail("Invalid kind", err)
				}
			}
			q, err := openStore()
			if err != nil {
				return err
			}
			defer q.Close()
			n, err := q.Clear(k)
			if err != nil {
				return fail("Could not clear queue", err)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d message(s)", n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "", "Only clear this kind")
	return cmd
}
