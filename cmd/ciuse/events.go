package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sarchlab/ciuse/datarecording"
	"github.com/spf13/cobra"
)

var eventsFlags struct {
	table  string
	where  string
	limit  int
	offset int
}

var eventsCmd = &cobra.Command{
	Use:   "events RECORDING",
	Short: "Print the events of an SQLite recording.",
	Long: `events prints the rows of a recording made with --record, ` +
		`oldest first. Tables are device_events and nvm_operations.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer r.Close()

		return printEvents(cmd.Context(), r, os.Stdout)
	},
}

func init() {
	f := eventsCmd.Flags()
	f.StringVar(&eventsFlags.table, "table", datarecording.NVMOperationsTable,
		"table to print")
	f.StringVar(&eventsFlags.where, "where", "",
		"SQL condition on the columns, such as \"Opcode = 10\"")
	f.IntVar(&eventsFlags.limit, "limit", 0, "print at most this many rows")
	f.IntVar(&eventsFlags.offset, "offset", 0, "skip this many rows")
	rootCmd.AddCommand(eventsCmd)
}

func printEvents(ctx context.Context, r datarecording.DataReader, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rows, total, err := r.Query(ctx, eventsFlags.table, datarecording.QueryParams{
		Where:   eventsFlags.where,
		OrderBy: "Seq",
		Limit:   eventsFlags.limit,
		Offset:  eventsFlags.offset,
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	for _, row := range rows {
		switch e := row.(type) {
		case *datarecording.NVMOperation:
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t0x%x\n",
				e.Seq, e.Domain, e.Kind, e.Opcode, e.Region, e.Page)
		case *datarecording.DeviceEvent:
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				e.Seq, e.Domain, e.Class, e.Msg, e.Attrs)
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "%d of %d rows\n", len(rows), total)

	return nil
}
