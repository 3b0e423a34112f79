package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"xdao.co/origin/registry/backends"
)

func backendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registry backends and their options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, b := range backends.List(backends.UsageCLI | backends.UsageServer) {
				fmt.Fprintf(tw, "%s\t%s\n", b.Name, b.Description)
				for _, o := range b.Options {
					req := ""
					if o.Required {
						req = " (required)"
					}
					fmt.Fprintf(tw, "  --opt %s=...\t%s%s\n", o.Key, o.Help, req)
				}
			}
			return tw.Flush()
		},
	}
}
