package nvm

import (
	"bytes"
	"log/slog"

	"github.com/sarchlab/ciuse/hooking"
)

// OpKind is the effect of an opcode.
type OpKind int

// The effects an opcode can have.
const (
	OpKindNone OpKind = iota
	OpKindEraseBuffer
	OpKindErasePage
	OpKindProgramPage
)

func (k OpKind) String() string {
	switch k {
	case OpKindEraseBuffer:
		return "EraseBuffer"
	case OpKindErasePage:
		return "ErasePage"
	case OpKindProgramPage:
		return "ProgramPage"
	}

	return "None"
}

// KindOf decodes an opcode. Unknown opcodes decode to OpKindNone.
func KindOf(opcode uint8) OpKind {
	switch opcode {
	case OpEraseBuffer:
		return OpKindEraseBuffer
	case OpErasePage:
		return OpKindErasePage
	case OpProgram, OpProgram5, OpProgram12, OpProgram14:
		// The hardware may distinguish these, but nothing observable does.
		return OpKindProgramPage
	}

	return OpKindNone
}

// An Operation describes an executed erase or program.
type Operation struct {
	Opcode uint8
	Kind   OpKind
	Region RegionID
	Page   uint64
}

var erasedPage = bytes.Repeat([]byte{0xFF}, PageSize)

// Operate runs an opcode against the page the staging pointer is in. It
// requires the controller to be unlocked and the page to lie inside the
// staged region.
func (c *Comp) Operate(opcode uint8) {
	if !c.state.Keys.Unlocked() {
		c.Notify(c, HookPosGuestError, "NVM is locked",
			slog.Int("opcode", int(opcode)))
		return
	}

	staging := c.state.Staging
	region := c.regions[staging.Region]
	if region == nil {
		c.Notify(c, HookPosGuestError, "unknown region to operate",
			slog.Int("region", int(staging.Region)),
			slog.Int("opcode", int(opcode)))
		return
	}

	page := staging.Page()
	if page >= region.Size() {
		c.Notify(c, HookPosGuestError, "address out of range",
			slog.String("region", staging.Region.String()),
			slog.String("addr", hex(uint64(staging.Addr))),
			slog.Int("opcode", int(opcode)))
		return
	}

	op := Operation{
		Opcode: opcode,
		Kind:   KindOf(opcode),
		Region: staging.Region,
		Page:   page,
	}

	switch op.Kind {
	case OpKindEraseBuffer:
		c.state.PageBuf.erase()
	case OpKindErasePage:
		if !c.writePage(region, page, erasedPage) {
			return
		}
	case OpKindProgramPage:
		if !c.writePage(region, page, c.state.PageBuf[:]) {
			return
		}
	default:
		c.Notify(c, HookPosUnimp, "unimplemented opcode",
			slog.Int("opcode", int(opcode)),
			slog.String("region", staging.Region.String()),
			slog.String("page", hex(page)))
		return
	}

	c.state.EInt = true
	c.notifyOperation(op)
}

func (c *Comp) writePage(region *Region, page uint64, data []byte) bool {
	err := region.Storage.Write(page, data)
	if err != nil {
		c.Notify(c, HookPosGuestError, "storage rejected page write",
			slog.String("region", region.ID.String()),
			slog.String("page", hex(page)),
			slog.String("err", err.Error()))
		return false
	}

	return true
}

func (c *Comp) notifyOperation(op Operation) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosOperation,
		Item:   op,
		Detail: hooking.Note{
			Msg: "operation done",
			Attrs: []slog.Attr{
				slog.String("op", op.Kind.String()),
				slog.Int("opcode", int(op.Opcode)),
				slog.String("region", op.Region.String()),
				slog.String("page", hex(op.Page)),
			},
		},
	})
}
