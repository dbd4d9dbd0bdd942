package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sarchlab/ciuse/datarecording"
	"github.com/sarchlab/ciuse/hooking"
	"github.com/sarchlab/ciuse/snapshot"
	"github.com/sarchlab/ciuse/soc"
	"github.com/sarchlab/ciuse/uart"
	"github.com/spf13/cobra"
)

// Environment variables that provide defaults for flags.
const (
	envUserCodeSize  = "CIUSE_USER_CODE_SIZE"
	envUserParamSize = "CIUSE_USER_PARAM_SIZE"
	envSRAMSize      = "CIUSE_SRAM_SIZE"
	envLogMask       = "CIUSE_LOG_MASK"
	envMonitorPort   = "CIUSE_MONITOR_PORT"
)

type options struct {
	envFile string
	logMask string
	spec    soc.Spec
	mask    hooking.LogMask

	snapshotIn  string
	snapshotOut string
	record      string
}

var opts = options{spec: soc.Defaults()}

func (o *options) addFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.envFile, "env-file", ".env",
		"file with CIUSE_* settings, ignored if missing")
	f.StringVar(&o.logMask, "log-mask", "guest_errors",
		"diagnostics to log: guest_errors, unimp, trace, all or none")
	f.Uint64Var(&o.spec.UserCodeSize, "user-code-size", o.spec.UserCodeSize,
		"size of the user code flash")
	f.Uint64Var(&o.spec.UserParamSize, "user-param-size", o.spec.UserParamSize,
		"size of the user param flash")
	f.Uint64Var(&o.spec.SRAMSize, "sram-size", o.spec.SRAMSize,
		"size of the SRAM")
}

// addMachineFlags adds the flags of commands that build a machine.
func (o *options) addMachineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.snapshotIn, "snapshot-in", "",
		"restore the machine from this snapshot before starting")
	f.StringVar(&o.snapshotOut, "snapshot-out", "",
		"save a snapshot of the machine here when done")
	f.StringVar(&o.record, "record", "",
		"record device events to an SQLite database or a clickhouse:// URL")
}

// resolve fills in unset flags from the environment and checks the result.
func (o *options) resolve(cmd *cobra.Command) error {
	if err := o.loadEnvFile(cmd); err != nil {
		return err
	}

	uints := []struct {
		flag, env string
		dst       *uint64
	}{
		{"user-code-size", envUserCodeSize, &o.spec.UserCodeSize},
		{"user-param-size", envUserParamSize, &o.spec.UserParamSize},
		{"sram-size", envSRAMSize, &o.spec.SRAMSize},
	}

	for _, u := range uints {
		if err := fromEnv(cmd, u.flag, u.env, func(s string) error {
			v, err := strconv.ParseUint(s, 0, 64)
			*u.dst = v
			return err
		}); err != nil {
			return err
		}
	}

	if err := fromEnv(cmd, "log-mask", envLogMask, func(s string) error {
		o.logMask = s
		return nil
	}); err != nil {
		return err
	}

	mask, err := hooking.ParseLogMask(o.logMask)
	if err != nil {
		return err
	}
	o.mask = mask

	return o.spec.Validate()
}

func (o *options) loadEnvFile(cmd *cobra.Command) error {
	err := godotenv.Load(o.envFile)
	if err == nil {
		return nil
	}

	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("env-file") {
		return nil
	}

	return fmt.Errorf("loading %s: %w", o.envFile, err)
}

// fromEnv calls set with the value of env unless the flag was given.
func fromEnv(cmd *cobra.Command, flag, env string, set func(string) error) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}

	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}

	if err := set(v); err != nil {
		return fmt.Errorf("%s=%q: %w", env, v, err)
	}

	return nil
}

// session is a machine together with the things attached to it.
type session struct {
	machine   *soc.Machine
	snapshots *snapshot.Manager
	recorder  datarecording.DataRecorder
}

func (o *options) newSession(tx uart.Transmitter) (*session, error) {
	m := soc.MakeBuilder().
		WithSpec(o.spec).
		WithTransmitter(tx).
		Build("CIU")

	if o.mask != hooking.LogNone {
		logger := slog.New(slog.NewTextHandler(os.Stderr,
			&slog.HandlerOptions{Level: slog.LevelDebug}))
		m.AcceptHook(hooking.NewLogHook(logger, o.mask))
	}

	s := &session{
		machine:   m,
		snapshots: snapshot.NewManager(),
	}
	m.RegisterSnapshots(s.snapshots)

	if o.record != "" {
		s.recorder = datarecording.Open(o.record)
		m.AcceptHook(datarecording.NewEventHook(s.recorder, hooking.LogAll))
	}

	if o.snapshotIn != "" {
		if err := s.restore(o.snapshotIn); err != nil {
			if cerr := s.close(); cerr != nil {
				slog.Error("closing recorder", "err", cerr)
			}
			return nil, err
		}
	}

	return s, nil
}

func (s *session) restore(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.snapshots.Restore(f); err != nil {
		return fmt.Errorf("restoring %s: %w", path, err)
	}

	return nil
}

func (s *session) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := s.snapshots.Save(f); err != nil {
		f.Close()
		return fmt.Errorf("saving %s: %w", path, err)
	}

	return f.Close()
}

// finish saves the snapshot if one was asked for and closes the recorder.
// Anything that can still drive the machine, such as the monitor, must be
// stopped before. A failure to close the recorder is logged, not returned.
func (s *session) finish(snapshotOut string) error {
	s.machine.Lock()
	defer s.machine.Unlock()

	var err error
	if snapshotOut != "" {
		err = s.save(snapshotOut)
	}

	if cerr := s.close(); cerr != nil {
		slog.Error("closing recorder", "err", cerr)
	}

	return err
}

func (s *session) close() error {
	if s.recorder == nil {
		return nil
	}

	err := s.recorder.Close()
	s.recorder = nil

	return err
}
