package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sarchlab/ciuse/nvm"
	"github.com/sarchlab/ciuse/snapshot"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/blake2b"
)

var dumpFlags struct {
	region string
	offset uint64
	length uint64
	digest bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump SNAPSHOT",
	Short: "Print a memory region of a snapshot.",
	Long: `dump prints a hex dump of one memory region of a snapshot. ` +
		`Regions are user_code, user_param, sram and factory_code.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		return dump(f, os.Stdout)
	},
}

func init() {
	f := dumpCmd.Flags()
	f.StringVar(&dumpFlags.region, "region", "user_code", "region to print")
	f.Uint64Var(&dumpFlags.offset, "offset", 0, "first byte to print")
	f.Uint64Var(&dumpFlags.length, "length", 0,
		"number of bytes to print, 0 for the rest of the region")
	f.BoolVar(&dumpFlags.digest, "digest", false,
		"print the blake2b-256 digest of the region instead")
	rootCmd.AddCommand(dumpCmd)
}

func dump(r io.Reader, w io.Writer) error {
	file, err := snapshot.Load(r)
	if err != nil {
		return err
	}

	data, err := regionImage(file, dumpFlags.region)
	if err != nil {
		return err
	}

	if dumpFlags.digest {
		sum := blake2b.Sum256(data)
		fmt.Fprintf(w, "%s  %s\n", hex.EncodeToString(sum[:]), dumpFlags.region)
		return nil
	}

	if dumpFlags.offset > uint64(len(data)) {
		return fmt.Errorf("offset 0x%x beyond %s (0x%x bytes)",
			dumpFlags.offset, dumpFlags.region, len(data))
	}

	end := uint64(len(data))
	if dumpFlags.length != 0 && dumpFlags.offset+dumpFlags.length < end {
		end = dumpFlags.offset + dumpFlags.length
	}

	return hexdump(w, dumpFlags.offset, data[dumpFlags.offset:end])
}

func regionImage(file *snapshot.File, region string) ([]byte, error) {
	switch region {
	case "user_code", "user_param":
		var s nvm.Snapshot
		if err := file.Decode("nvm", &s); err != nil {
			return nil, err
		}

		if region == "user_code" {
			return s.UserCode, nil
		}

		return s.UserParam, nil

	case "sram", "factory_code":
		var data []byte
		if err := file.Decode(region, &data); err != nil {
			return nil, err
		}

		return data, nil

	default:
		return nil, fmt.Errorf("unknown region %q", region)
	}
}

// hexdump prints 16 bytes per line, each line starting with its offset in
// the region.
func hexdump(w io.Writer, base uint64, data []byte) error {
	var sb strings.Builder

	for i := 0; i < len(data); i += 16 {
		line := data[i:min(i+16, len(data))]

		fmt.Fprintf(&sb, "%08x ", base+uint64(i))
		for j := 0; j < 16; j++ {
			if j == 8 {
				sb.WriteByte(' ')
			}
			if j < len(line) {
				fmt.Fprintf(&sb, " %02x", line[j])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString("  |")
		for _, b := range line {
			if b >= 0x20 && b < 0x7F {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}

	_, err := io.WriteString(w, sb.String())

	return err
}
