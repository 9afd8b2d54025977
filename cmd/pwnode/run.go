package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pixelweather-go/errcode"
	"pixelweather-go/platform"
	"pixelweather-go/platform/sim"
	"pixelweather-go/services/firmware"
	"pixelweather-go/x/logx"
)

var (
	runCycles int
	runWait   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the node and run wake cycles",
	Long: `Boot the simulated node --cycles times. Each boot runs one wake cycle and
ends the way the firmware decides: deep sleep, fake sleep on console power,
halt or reboot. Deep sleep is not waited out; fake sleep is only waited out
with --wait. A halted node stays halted until "pwnode power-cycle".`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runCycles, "cycles", "n", 1, "Number of boots")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "Wait out fake sleep")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	for i, n := 0, runCycles; i < n; i++ {
		out, err := bootOnce(ctx, opts, runWait)
		if err != nil {
			return err
		}
		fmt.Printf("boot %d: %s\n", i+1, out)
		if out.Kind == platform.Halt {
			fmt.Println("node halted, power-cycle to revive it")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// bootOnce opens the machine, runs one cycle, executes its outcome on the
// simulated power controller and saves the machine.
func bootOnce(ctx context.Context, o nodeOptions, wait bool) (platform.Outcome, error) {
	cfg, err := o.config()
	if err != nil {
		return platform.Outcome{}, err
	}
	m, err := sim.Open(o.dir)
	if err != nil {
		return platform.Outcome{}, err
	}
	defer func() { errcode.Report(m.Close(), "Failed to close NVS") }()

	setupLogging(cfg, m.Scenario.Console || o.forceLogs)
	logx.Module("sim").Info("Boot", "n", m.Boots(), "id", m.BootID, "reset", m.Power.Reason)

	node, err := firmware.New(firmware.Deps{
		Config:        cfg,
		Power:         m.Power,
		Flash:         m.Flash,
		Radio:         m.Radio,
		ADC:           m.ADC,
		I2C:           m.Sensor,
		Durable:       m.NVS,
		RetainedImage: m.RetainedImage(),
		Dial:          firmware.Dial,
	})
	if err != nil {
		return platform.Outcome{}, err
	}
	out := node.Run(ctx)

	ectx := ctx
	if !wait {
		c, cancel := context.WithCancel(ctx)
		cancel()
		ectx = c
	}
	platform.Execute(ectx, m.Power, out)
	return out, m.Save(node.Retained())
}
