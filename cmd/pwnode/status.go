package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pixelweather-go/errcode"
	"pixelweather-go/platform/sim"
	"pixelweather-go/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show slots, retained memory and NVS of the machine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printStatus(os.Stdout, opts.dir)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printStatus(w io.Writer, dir string) error {
	flash, next, img, err := sim.Peek(dir)
	if err != nil {
		return err
	}
	ret, err := storage.InitRetained(next, img)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tSTATE\tVERSION\t")
	for i, s := range flash.Slots {
		mark := ""
		switch {
		case i == flash.Running && i == flash.Boot:
			mark = "running"
		case i == flash.Running:
			mark = "running, boots other"
		case i == flash.Boot:
			mark = "next boot"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Label, s.State, s.Version, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nnext reset:     %s\n", next)
	if ret.ColdBoot() {
		fmt.Fprintln(w, "retained:       lost (cold boot)")
	} else {
		fmt.Fprintf(w, "retained:       failures=%d report_pending=%v\n", ret.Failures(), ret.ReportPending())
	}

	store, err := sim.OpenNVS(dir)
	if err != nil {
		return err
	}
	defer func() { errcode.Report(store.Close(), "Failed to close NVS") }()
	nvs := storage.NewNVS(store)

	rec, err := nvs.LastError()
	if err != nil {
		return err
	}
	if rec != nil {
		fmt.Fprintf(w, "last error:     %s\n", rec.Message)
	} else {
		fmt.Fprintln(w, "last error:     none")
	}
	s, ok, err := nvs.Settings()
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(w, "settings:       sleep=%s ota=%v sbop=%v battery_ignore=%v mute=%v\n",
			s.SleepDuration(), s.OTA, s.SBOP, s.BatteryIgnore, s.MuteNotifications)
	} else {
		fmt.Fprintln(w, "settings:       never received")
	}
	return nil
}
