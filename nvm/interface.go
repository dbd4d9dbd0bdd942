package nvm

// Storage is the backing buffer of a region. It is implemented by
// mem.Storage.
type Storage interface {
	Capacity() uint64
	Read(address, length uint64) ([]byte, error)
	Write(address uint64, data []byte) error
}
