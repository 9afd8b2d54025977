package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pixelweather-go/platform/sim"
)

var powerCycleCmd = &cobra.Command{
	Use:   "power-cycle",
	Short: "Disconnect and reconnect the battery",
	Long: `Drop the retained memory so the next boot is a cold power-on boot.
Flash and NVS are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := sim.PowerCycle(opts.dir); err != nil {
			return err
		}
		fmt.Println("Power cycled, next boot is cold")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(powerCycleCmd)
}
