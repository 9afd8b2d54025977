package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"pixelweather-go/services/config"
	"pixelweather-go/x/logx"
)

// nodeOptions select the machine and its board configuration.
type nodeOptions struct {
	dir        string
	board      string
	configPath string
	serverURL  string
	forceLogs  bool
}

var opts nodeOptions

var rootCmd = &cobra.Command{
	Use:   "pwnode",
	Short: "PixelWeather node simulator",
	Long: `pwnode runs the node firmware on the host against simulated hardware.

A machine directory holds the two firmware slots, the NVS database, the
retained memory image and a scenario.yaml describing the radio environment,
battery and sensor. Each "run" is one boot of the node.

Typical session:
  pwnode init
  pwnode serve --releases ./releases &
  pwnode run --cycles 3
  pwnode status`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&opts.dir, "dir", "d", "pwnode-machine", "Machine directory")
	rootCmd.PersistentFlags().StringVar(&opts.board, "board", "sim", "Embedded board configuration")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Board configuration file (overrides --board)")
	rootCmd.PersistentFlags().StringVar(&opts.serverURL, "server", "", "Override the pwmp server URL")
	rootCmd.PersistentFlags().BoolVar(&opts.forceLogs, "force-logs", true, "Log even when the scenario has no console attached")
}

func (o nodeOptions) config() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load(o.board)
	}
	if err != nil {
		return nil, err
	}
	if o.serverURL != "" {
		cfg.Server.URL = o.serverURL
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogging installs the console logger the way the board does: no
// console, no logs.
func setupLogging(cfg *config.Config, console bool) {
	level, on := cfg.LogLevel()
	logx.Install(os.Stderr, level, on && console)
}

// toolLogging is for commands that are not a node boot.
func toolLogging() {
	logx.Install(os.Stderr, slog.LevelInfo, true)
}
