package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pollster/internal/banner"
)

// bannerCmd shows the rate-limit banner of the current process. The banner is
// raised by rate_limited events seen while the command runs, so it is most
// useful together with the redis event bus.
var bannerCmd = &cobra.Command{
	Use:   "banner",
	Short: "Show the rate-limit banner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		printBanner(appInstance.Banner.Get())
		return nil
	},
}

var dismissBannerCmd = &cobra.Command{
	Use:   "dismiss",
	Short: "Dismiss the rate-limit banner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		appInstance.Banner.Dismiss()
		printBanner(appInstance.Banner.Get())
		return nil
	},
}

func printBanner(st banner.State) {
	if !st.Show {
		fmt.Println("No banner.")
		return
	}
	color.New(color.FgYellow, color.Bold).Println(st.Message)
}

func init() {
	bannerCmd.AddCommand(dismissBannerCmd)
	rootCmd.AddCommand(bannerCmd)
}
