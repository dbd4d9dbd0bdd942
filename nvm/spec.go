package nvm

import "fmt"

// Spec holds the configuration of the controller.
type Spec struct {
	UserCodeSize  uint64
	UserParamSize uint64
}

// Defaults returns the configuration of the CIU part.
func Defaults() Spec {
	return Spec{
		UserCodeSize:  0x49000,
		UserParamSize: PageSize,
	}
}

// Validate checks that both regions hold whole pages and fit in the 32-bit
// address space of the guest.
func (s Spec) Validate() error {
	if err := validateRegionSize("user code", s.UserCodeSize); err != nil {
		return err
	}

	return validateRegionSize("user param", s.UserParamSize)
}

func validateRegionSize(name string, size uint64) error {
	if size == 0 {
		return fmt.Errorf("nvm: %s size cannot be 0", name)
	}

	if size%PageSize != 0 {
		return fmt.Errorf("nvm: %s size 0x%x is not a multiple of the page size",
			name, size)
	}

	if size > 1<<32 {
		return fmt.Errorf("nvm: %s size 0x%x exceeds 4 GiB", name, size)
	}

	return nil
}
