package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/sarchlab/ciuse/console"
	"github.com/sarchlab/ciuse/monitoring"
	"github.com/sarchlab/ciuse/uart"
	"github.com/spf13/cobra"
)

const (
	txQueueDepth = 256
	txTimeout    = 100 * time.Millisecond
	rxPollPeriod = time.Millisecond
)

var serveFlags struct {
	port    int
	open    bool
	console bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the machine on an HTTP monitor.",
	Long: `serve builds a machine and exposes it through the monitor. With ` +
		`--console the terminal is attached to the UART in raw mode; type ` +
		`Ctrl-] to quit. Without it, the command runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := fromEnv(cmd, "port", envMonitorPort, func(s string) error {
			port, err := parsePort(s)
			serveFlags.port = port
			return err
		}); err != nil {
			return err
		}

		return serve(cmd.Context())
	},
}

func init() {
	f := serveCmd.Flags()
	f.IntVar(&serveFlags.port, "port", 0,
		"port of the monitor, a random one if not given")
	f.BoolVar(&serveFlags.open, "open", false,
		"open the monitor in a browser")
	f.BoolVar(&serveFlags.console, "console", false,
		"attach the terminal to the UART")
	opts.addMachineFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}

	return port, nil
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		term *console.Terminal
		out  io.Writer = os.Stdout
		err  error
	)

	if serveFlags.console {
		term, err = console.OpenTerminal(os.Stdin)
		if err != nil {
			return err
		}
		defer term.Restore()

		out = console.RawWriter{W: os.Stdout}
	}

	tx := uart.NewQueuedTransmitter(txQueueDepth, txTimeout)
	txDone := make(chan error, 1)
	go func() { txDone <- tx.Run(ctx, out) }()

	s, err := opts.newSession(tx)
	if err != nil {
		return err
	}

	mon := monitoring.NewMonitor().
		WithPortNumber(serveFlags.port).
		WithLocker(s.machine).
		WithBus(s.machine)
	for _, c := range s.machine.Components() {
		mon.RegisterComponent(c)
	}

	url := mon.StartServer()

	if serveFlags.open {
		if err := browser.OpenURL(url); err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
		}
	}

	if term != nil {
		pumpConsole(ctx, s, term)
	} else {
		<-ctx.Done()
	}

	stop()
	if err := <-txDone; err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "UART output: %v\n", err)
	}

	if err := mon.Close(); err != nil {
		slog.Error("closing monitor", "err", err)
	}

	return s.finish(opts.snapshotOut)
}

// pumpConsole feeds typed bytes to the UART until the user quits.
func pumpConsole(ctx context.Context, s *session, term *console.Terminal) {
	ticker := time.NewTicker(rxPollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-term.Done():
			return
		case <-ticker.C:
			s.machine.Lock()
			s.machine.PumpRx(term)
			s.machine.Unlock()
		}
	}
}
