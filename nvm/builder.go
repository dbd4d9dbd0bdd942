package nvm

import (
	"github.com/sarchlab/ciuse/mem"
)

// Builder constructs a Comp.
type Builder struct {
	spec             Spec
	userCodeStorage  Storage
	userParamStorage Storage
}

// MakeBuilder returns a new Builder with the default Spec.
func MakeBuilder() Builder {
	return Builder{spec: Defaults()}
}

// WithSpec sets the whole configuration.
func (b Builder) WithSpec(spec Spec) Builder {
	b.spec = spec
	return b
}

// WithUserCodeSize sets the size of the user code region.
func (b Builder) WithUserCodeSize(size uint64) Builder {
	b.spec.UserCodeSize = size
	return b
}

// WithUserParamSize sets the size of the user param region.
func (b Builder) WithUserParamSize(size uint64) Builder {
	b.spec.UserParamSize = size
	return b
}

// WithUserCodeStorage sets the backing storage of the user code region. The
// region size becomes the capacity of the storage.
func (b Builder) WithUserCodeStorage(s Storage) Builder {
	b.userCodeStorage = s
	return b
}

// WithUserParamStorage sets the backing storage of the user param region.
// The region size becomes the capacity of the storage.
func (b Builder) WithUserParamStorage(s Storage) Builder {
	b.userParamStorage = s
	return b
}

// Build creates the controller. New storage is erased to 0xFF.
func (b Builder) Build(name string) *Comp {
	userCode := b.userCodeStorage
	if userCode == nil {
		userCode = newErasedStorage(b.spec.UserCodeSize)
	}
	b.spec.UserCodeSize = userCode.Capacity()

	userParam := b.userParamStorage
	if userParam == nil {
		userParam = newErasedStorage(b.spec.UserParamSize)
	}
	b.spec.UserParamSize = userParam.Capacity()

	if err := b.spec.Validate(); err != nil {
		panic(err)
	}

	c := &Comp{
		name:    name,
		regions: make(map[RegionID]*Region),
		windows: make(map[RegionID]*Window),
	}

	c.addRegion(RegionUserCode, userCode)
	c.addRegion(RegionUserParam, userParam)

	return c
}

func (c *Comp) addRegion(id RegionID, s Storage) {
	c.regions[id] = &Region{ID: id, Storage: s}
	c.windows[id] = &Window{comp: c, region: id}
}

func newErasedStorage(size uint64) *mem.Storage {
	return mem.NewStorageWithFill(size, 4*mem.KB, 0xFF)
}
