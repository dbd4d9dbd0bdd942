package nvm

import (
	"fmt"
)

// Snapshot is the serializable state of the controller, storage included.
type Snapshot struct {
	Keys      KeyState
	EInt      bool
	PageBuf   []byte
	Staging   StagingPointer
	UserCode  []byte
	UserParam []byte
}

// SnapshotState returns a Snapshot of the controller.
func (c *Comp) SnapshotState() any {
	return Snapshot{
		Keys:      c.state.Keys,
		EInt:      c.state.EInt,
		PageBuf:   c.PageBuffer(),
		Staging:   c.state.Staging,
		UserCode:  c.mustReadAll(RegionUserCode),
		UserParam: c.mustReadAll(RegionUserParam),
	}
}

func (c *Comp) mustReadAll(id RegionID) []byte {
	region := c.regions[id]

	data, err := region.Storage.Read(0, region.Size())
	if err != nil {
		panic(err)
	}

	return data
}

// ValidateState checks that a Snapshot fits the controller: the page buffer
// is one page and the storage images match the region sizes.
func (c *Comp) ValidateState(snapshot any) error {
	_, err := c.checkSnapshot(snapshot)
	return err
}

func (c *Comp) checkSnapshot(snapshot any) (Snapshot, error) {
	var s Snapshot
	switch v := snapshot.(type) {
	case Snapshot:
		s = v
	case *Snapshot:
		s = *v
	default:
		return s, fmt.Errorf("nvm: cannot restore from %T", snapshot)
	}

	if len(s.PageBuf) != PageSize {
		return s, fmt.Errorf("nvm: page buffer of %d bytes, expect %d",
			len(s.PageBuf), PageSize)
	}

	for id, image := range s.images() {
		if uint64(len(image)) != c.regions[id].Size() {
			return s, fmt.Errorf("nvm: %s image of 0x%x bytes, expect 0x%x",
				id, len(image), c.regions[id].Size())
		}
	}

	return s, nil
}

func (s Snapshot) images() map[RegionID][]byte {
	return map[RegionID][]byte{
		RegionUserCode:  s.UserCode,
		RegionUserParam: s.UserParam,
	}
}

// RestoreState restores the controller from a Snapshot that passes
// ValidateState.
func (c *Comp) RestoreState(snapshot any) error {
	s, err := c.checkSnapshot(snapshot)
	if err != nil {
		return err
	}

	for id, image := range s.images() {
		if err := c.regions[id].Storage.Write(0, image); err != nil {
			return fmt.Errorf("nvm: restoring %s: %w", id, err)
		}
	}

	c.state.Keys = s.Keys & KeyState(keyAll)
	c.state.EInt = s.EInt
	copy(c.state.PageBuf[:], s.PageBuf)
	c.state.Staging = s.Staging

	return nil
}
