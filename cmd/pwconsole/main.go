// Command pwconsole follows a node's serial console and highlights its log
// lines by level.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"golang.org/x/term"
)

var (
	portName string
	baudRate int
	minLevel string
	listOnly bool
	doReset  bool
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "pwconsole",
	Short: "PixelWeather serial console",
	Long: `Follow the USB serial console of a node.

Lines in the node log format ("LEVEL [module] message key=value") are
coloured by level and can be filtered with --level. Other output is passed
through. Use "--port -" to read a captured log from stdin.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&portName, "port", "p", "", "Serial port device, or - for stdin")
	rootCmd.Flags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate")
	rootCmd.Flags().StringVarP(&minLevel, "level", "l", "debug", "Hide lines below this level")
	rootCmd.Flags().BoolVar(&listOnly, "list", false, "List serial ports and exit")
	rootCmd.Flags().BoolVar(&doReset, "reset", false, "Reset the board through DTR/RTS before reading")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colours")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if listOnly {
		ports, err := serial.GetPortsList()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	level, err := parseLevel(minLevel)
	if err != nil {
		return err
	}
	f := &filter{min: level, color: !noColor && term.IsTerminal(int(os.Stdout.Fd()))}

	var in io.Reader
	switch portName {
	case "":
		return fmt.Errorf("--port is required")
	case "-":
		in = os.Stdin
	default:
		port, err := openPort(portName, baudRate)
		if err != nil {
			return err
		}
		defer port.Close()
		if doReset {
			if err := resetBoard(port); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
		}
		go func() {
			<-cmd.Context().Done()
			port.Close()
		}()
		in = port
		fmt.Fprintf(os.Stderr, "Console %s @ %d baud, Ctrl+C to exit\n", portName, baudRate)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 4096), 64*1024)
	for sc.Scan() {
		if out, ok := f.line(sc.Text()); ok {
			fmt.Println(out)
		}
	}
	if cmd.Context().Err() != nil {
		return nil
	}
	return sc.Err()
}

func openPort(name string, baud int) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return port, nil
}

// resetBoard pulses EN through the auto-reset circuit of the USB bridge
// while keeping the boot strap released.
func resetBoard(p serial.Port) error {
	if err := p.SetDTR(false); err != nil {
		return err
	}
	if err := p.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return p.SetRTS(false)
}
