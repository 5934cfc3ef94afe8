package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"pollster/internal/clix"
)

var historySlot string

// historyCmd represents the base command for job history operations
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View job history",
	Long:  `Displays jobs recorded by the history store, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listHistoryCmd.RunE(cmd, args)
	},
}

var listHistoryCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if appInstance.History == nil {
			return fmt.Errorf("job history is disabled (history.driver is none)")
		}
		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}

		jobs, err := appInstance.History.ListJobs(cmd.Context(), historySlot, page.Limit, page.Offset)
		if err != nil {
			return fmt.Errorf("error listing job history: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No job history found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"ID", "Slot", "Kind", "Status", "Job Status", "Progress", "Polls", "Started At", "Error"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, j := range jobs {
			errMsg := ""
			if j.Error != nil {
				errMsg = *j.Error
			}
			table.Append([]string{
				j.ID.String()[:8],
				j.Slot,
				j.Kind,
				j.Status,
				j.JobStatus,
				strconv.Itoa(j.Progress),
				strconv.Itoa(j.Polls),
				j.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				errMsg,
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, listHistoryCmd} {
		c.Flags().IntP("limit", "n", 20, "Maximum number of jobs to show")
		c.Flags().Int("offset", 0, "Number of jobs to skip")
		c.Flags().StringVar(&historySlot, "slot", "", "Only show jobs of this slot")
	}

	historyCmd.AddCommand(listHistoryCmd)
	rootCmd.AddCommand(historyCmd)
}
