package uart

// Offsets of the registers in the UART window. The window only takes 4-byte
// accesses.
const (
	RegStatus uint64 = 0x00
	RegRxData uint64 = 0x14
	RegTxData uint64 = 0x18

	RegsSize   uint64 = 0x1C
	AccessSize        = 4
)

// Bits of the status register.
const (
	StatusRxReady uint32 = 1 << 1
	StatusTx      uint32 = 1 << 2
)
