package nvm

// PageSize is the size of the page buffer and of one flash page.
const PageSize = 512

const pageMask = PageSize - 1

// Offsets of the registers in the controller's register window.
const (
	RegStatus    uint64 = 0x00
	RegOperation uint64 = 0x04
	RegRegionKey uint64 = 0x20
	RegParamKey  uint64 = 0x24
	RegGlobalKey uint64 = 0x28

	// RegsSize is the size of the register window.
	RegsSize uint64 = 0x40
)

// StatusEInt is the event flag bit of the status register.
const StatusEInt uint64 = 1 << 1

// An operation trigger must carry OperationMagic in the bits selected by
// OperationMagicMask. The remaining low nibble is the opcode.
const (
	OperationMagic     uint64 = 0x57AF6C00
	OperationMagicMask uint64 = 0xFFFFFFF0
	opcodeMask         uint64 = 0xF
)

// Opcodes accepted by the operation register. Four opcodes program a page.
// They behave identically.
const (
	OpEraseBuffer uint8 = 2
	OpProgram     uint8 = 4
	OpProgram5    uint8 = 5
	OpErasePage   uint8 = 10
	OpProgram12   uint8 = 12
	OpProgram14   uint8 = 14
)

// StagingAccessSize is the only access width the data-staging windows
// accept.
const StagingAccessSize = 4
