package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sarchlab/ciuse/script"
	"github.com/sarchlab/ciuse/uart"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run SCRIPT",
	Short: "Run a register-access script against a fresh machine.",
	Long: `run executes SCRIPT line by line. Reads are printed to stdout, ` +
		`and so is everything the guest sends through the UART. The command ` +
		`fails at the first read that does not match its expect clause. ` +
		`A SCRIPT ending in .lua is run as a Lua program instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runScript(args[0])
	},
}

func init() {
	opts.addMachineFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func runScript(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var cmds []script.Command
	isLua := strings.HasSuffix(path, ".lua")

	if !isLua {
		cmds, err = script.Parse(f)
		if err != nil {
			return err
		}
	}

	s, err := opts.newSession(uart.WriterTransmitter{W: os.Stdout})
	if err != nil {
		return err
	}

	var runErr error
	if isLua {
		runErr = script.RunLua(s.machine, f, filepath.Base(path), os.Stdout)
	} else {
		runner := &script.Runner{Target: s.machine, Out: os.Stdout}
		runErr = runner.Run(cmds)
	}

	if err := s.finish(opts.snapshotOut); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(os.Stderr, "%s done\n", path)

	return nil
}
