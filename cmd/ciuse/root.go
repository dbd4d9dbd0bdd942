package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var rootCmd = &cobra.Command{
	Use:   "ciuse",
	Short: "Run the NVM controller and UART of the CIU secure element.",
	Long: `ciuse builds the CIU secure element as the CPU sees it and drives ` +
		`it with register-access scripts, an HTTP monitor or a terminal ` +
		`attached to the UART. Snapshots of the machine can be saved, ` +
		`restored and inspected.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return opts.resolve(cmd)
	},
}

func init() {
	opts.addFlags(rootCmd)
}

// Execute runs the command line and exits through atexit, so recorders get
// flushed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
