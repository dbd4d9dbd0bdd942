package datarecording

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/rs/xid"

	"github.com/sarchlab/ciuse/hooking"
	"github.com/sarchlab/ciuse/nvm"
)

// Tables written by an EventHook.
const (
	DeviceEventsTable  = "device_events"
	NVMOperationsTable = "nvm_operations"
)

// DeviceEvent is a row of the device event table.
type DeviceEvent struct {
	ID     string
	Seq    uint64
	Domain string
	Pos    string
	Class  string
	Msg    string
	Attrs  string
}

// NVMOperation is a row of the NVM operation table.
type NVMOperation struct {
	ID     string
	Seq    uint64
	Domain string
	Opcode uint8
	Kind   string
	Region string
	Page   uint64
}

// EventHook records the notes devices emit and the NVM operations they
// perform.
type EventHook struct {
	recorder DataRecorder
	mask     hooking.LogMask
	seq      uint64
}

// NewEventHook creates the tables and returns a hook that records the
// notes of the classes in mask. NVM operations are always recorded.
func NewEventHook(recorder DataRecorder, mask hooking.LogMask) *EventHook {
	recorder.CreateTable(DeviceEventsTable, DeviceEvent{})
	recorder.CreateTable(NVMOperationsTable, NVMOperation{})

	return &EventHook{
		recorder: recorder,
		mask:     mask,
	}
}

// Func records ctx.
func (h *EventHook) Func(ctx hooking.HookCtx) {
	domain := ""
	if named, ok := ctx.Domain.(hooking.Named); ok {
		domain = named.Name()
	}

	if op, ok := ctx.Item.(nvm.Operation); ok {
		h.seq++
		h.recorder.InsertData(NVMOperationsTable, NVMOperation{
			ID:     xid.New().String(),
			Seq:    h.seq,
			Domain: domain,
			Opcode: op.Opcode,
			Kind:   op.Kind.String(),
			Region: op.Region.String(),
			Page:   op.Page,
		})
	}

	note, ok := ctx.Detail.(hooking.Note)
	if !ok || !h.mask.Has(ctx.Pos.Mask) {
		return
	}

	h.seq++
	h.recorder.InsertData(DeviceEventsTable, DeviceEvent{
		ID:     xid.New().String(),
		Seq:    h.seq,
		Domain: domain,
		Pos:    ctx.Pos.Name,
		Class:  ctx.Pos.Mask.String(),
		Msg:    note.Msg,
		Attrs:  formatAttrs(note.Attrs),
	})
}

func formatAttrs(attrs []slog.Attr) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, fmt.Sprintf("%s=%s", a.Key, a.Value))
	}

	return strings.Join(parts, " ")
}
