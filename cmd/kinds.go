package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"pollster/internal/polling"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the job kinds and their endpoints",
	Args:  cobra.NoArgs,
	Annotations: map[string]string{
		skipAppAnnotation: "true",
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Kind", "Start", "Query", "End", "Method", "Poll Window"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, k := range polling.DefaultRegistry().List() {
			window := polling.FastWindow
			if k.Speed == polling.SpeedLong {
				window = polling.LongWindow
			}
			table.Append([]string{
				k.Name,
				k.StartPath,
				k.QueryPath + "/{token}",
				k.EndPath + "/{token}",
				k.Method,
				window.Min.String() + "-" + window.Max.String(),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}
