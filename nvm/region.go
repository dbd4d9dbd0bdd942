package nvm

// RegionID identifies a storage region of the controller.
type RegionID uint32

// The regions of the controller. The zero value means that no store has been
// staged yet.
const (
	RegionNone      RegionID = 0
	RegionUserCode  RegionID = 1
	RegionUserParam RegionID = 2
)

func (id RegionID) String() string {
	switch id {
	case RegionUserCode:
		return "User Code"
	case RegionUserParam:
		return "User Param"
	case RegionNone:
		return "None"
	}

	return "Unknown"
}

// A Region is a persistent storage area that firmware programs page by page.
type Region struct {
	ID      RegionID
	Storage Storage
}

// Size returns the size of the region in bytes.
func (r *Region) Size() uint64 {
	return r.Storage.Capacity()
}
