package nvm

// A Key is one of the three unlock keys of the controller.
type Key uint8

// The unlock keys. Each is a bit of the KeyState.
const (
	KeyRegion Key = 1 << iota
	KeyParam
	KeyGlobal

	keyAll = KeyRegion | KeyParam | KeyGlobal
)

// Sentinel returns the value that arms the key.
func (k Key) Sentinel() uint64 {
	switch k {
	case KeyRegion:
		return 0xAA55AA55
	case KeyParam:
		return 0x55AA55AA
	case KeyGlobal:
		return 0xA5A55A5A
	}

	panic("unknown key")
}

// Register returns the offset of the register that writes the key.
func (k Key) Register() uint64 {
	switch k {
	case KeyRegion:
		return RegRegionKey
	case KeyParam:
		return RegParamKey
	case KeyGlobal:
		return RegGlobalKey
	}

	panic("unknown key")
}

func (k Key) String() string {
	switch k {
	case KeyRegion:
		return "region"
	case KeyParam:
		return "param"
	case KeyGlobal:
		return "global"
	}

	return "unknown"
}

// Keys lists all unlock keys.
func Keys() []Key {
	return []Key{KeyRegion, KeyParam, KeyGlobal}
}

// KeyState holds one bit per key. The bit of a key reflects only the latest
// write to that key's register.
type KeyState uint8

// Write updates the bit of k from a write of value to its register.
func (s *KeyState) Write(k Key, value uint64) {
	*s &^= KeyState(k)
	if value == k.Sentinel() {
		*s |= KeyState(k)
	}
}

// Has reports whether k is armed.
func (s KeyState) Has(k Key) bool {
	return s&KeyState(k) != 0
}

// Unlocked reports whether all keys are armed.
func (s KeyState) Unlocked() bool {
	return s == KeyState(keyAll)
}
