// Package script runs register-access scripts against a machine. A script
// stands in for guest firmware: it stores to and loads from the bus, feeds
// the UART and resets the devices.
//
//	# unlock the NVM controller
//	w32 0x500070a0 0xaa55aa55
//	r32 0x50007080 expect 0x0
//	rx "hello\n"
//	reset
package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Op is what a command does.
type Op int

// All the ops.
const (
	OpWrite Op = iota
	OpRead
	OpRx
	OpReset
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpRead:
		return "read"
	case OpRx:
		return "rx"
	case OpReset:
		return "reset"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// A Command is one line of a script.
type Command struct {
	Line int
	Op   Op

	Addr  uint64
	Size  int
	Value uint64

	// Expect is checked against the result of a read when HasExpect is set.
	Expect    uint64
	HasExpect bool

	// Data is what rx delivers.
	Data []byte
}

// A ParseError reports a malformed line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("script: line %d: %s", e.Line, e.Msg)
}

var sizes = map[string]int{"8": 1, "16": 2, "32": 4}

// Parse reads a whole script.
func Parse(r io.Reader) ([]Command, error) {
	var cmds []Command

	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		cmd, err := parseLine(line, text)
		if err != nil {
			return nil, err
		}

		cmds = append(cmds, cmd)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("script: reading: %w", err)
	}

	return cmds, nil
}

func parseLine(line int, text string) (Command, error) {
	fail := func(format string, args ...any) (Command, error) {
		return Command{}, &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
	}

	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	args := fields[1:]
	cmd := Command{Line: line}

	switch {
	case name == "reset":
		if len(args) != 0 {
			return fail("reset takes no arguments")
		}
		cmd.Op = OpReset

	case name == "rx":
		rest := strings.TrimSpace(text[len(fields[0]):])
		data, err := parseRx(rest)
		if err != nil {
			return fail("%v", err)
		}
		cmd.Op = OpRx
		cmd.Data = data

	case len(name) > 1 && (name[0] == 'w' || name[0] == 'r'):
		size, ok := sizes[name[1:]]
		if !ok {
			return fail("unknown command %q", fields[0])
		}
		cmd.Size = size

		if name[0] == 'w' {
			if len(args) != 2 {
				return fail("%s takes an address and a value", name)
			}
			cmd.Op = OpWrite
		} else {
			if len(args) != 1 && !(len(args) == 3 && strings.EqualFold(args[1], "expect")) {
				return fail("%s takes an address and an optional expect clause", name)
			}
			cmd.Op = OpRead
		}

		addr, err := parseNumber(args[0])
		if err != nil {
			return fail("bad address %q", args[0])
		}
		cmd.Addr = addr

		var valueArg string
		switch {
		case cmd.Op == OpWrite:
			valueArg = args[1]
		case len(args) == 3:
			valueArg = args[2]
			cmd.HasExpect = true
		}

		if valueArg != "" {
			v, err := parseNumber(valueArg)
			if err != nil {
				return fail("bad value %q", valueArg)
			}
			if v > maxValue(size) {
				return fail("value %s does not fit in %d bytes", valueArg, size)
			}
			if cmd.Op == OpWrite {
				cmd.Value = v
			} else {
				cmd.Expect = v
			}
		}

	default:
		return fail("unknown command %q", fields[0])
	}

	return cmd, nil
}

func parseRx(arg string) ([]byte, error) {
	if arg == "" {
		return nil, errors.New("rx takes a byte or a quoted string")
	}

	if strings.HasPrefix(arg, "\"") {
		s, err := strconv.Unquote(arg)
		if err != nil {
			return nil, fmt.Errorf("bad string %s", arg)
		}
		if s == "" {
			return nil, errors.New("empty rx string")
		}
		return []byte(s), nil
	}

	v, err := parseNumber(arg)
	if err != nil || v > 0xFF {
		return nil, fmt.Errorf("bad byte %q", arg)
	}

	return []byte{byte(v)}, nil
}

// parseNumber accepts 0x, 0b, 0o and decimal.
func parseNumber(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

func maxValue(size int) uint64 {
	return 1<<(8*uint(size)) - 1
}
