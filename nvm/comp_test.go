package nvm

import (
	"bytes"
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/ciuse/hooking"
	"github.com/sarchlab/ciuse/mem"
)

func unlock(c *Comp) {
	for _, k := range Keys() {
		c.WriteReg(k.Register(), k.Sentinel(), 4)
	}
}

func trigger(c *Comp, opcode uint8) {
	c.WriteReg(RegOperation, OperationMagic|uint64(opcode), 4)
}

func readAll(c *Comp, id RegionID) []byte {
	r := c.Region(id)
	data, err := r.Storage.Read(0, r.Size())
	Expect(err).ToNot(HaveOccurred())

	return data
}

var _ = Describe("Comp", func() {
	var (
		mockCtrl *gomock.Controller
		hook     *MockHook
		ctxs     []hooking.HookCtx
		c        *Comp
	)

	posNames := func() []string {
		names := make([]string, 0, len(ctxs))
		for _, ctx := range ctxs {
			names = append(names, ctx.Pos.Name)
		}
		return names
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		hook = NewMockHook(mockCtrl)
		ctxs = nil
		hook.EXPECT().
			Func(gomock.Any()).
			Do(func(ctx hooking.HookCtx) { ctxs = append(ctxs, ctx) }).
			AnyTimes()

		c = MakeBuilder().Build("NVM")
		c.AcceptHook(hook)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should build regions of the default sizes, erased", func() {
		Expect(c.Name()).To(Equal("NVM"))
		Expect(c.Region(RegionUserCode).Size()).To(Equal(uint64(0x49000)))
		Expect(c.Region(RegionUserParam).Size()).To(Equal(uint64(512)))
		Expect(c.Window(RegionUserCode).Read(0x48FFC, 4)).
			To(Equal(uint64(0xFFFFFFFF)))
		Expect(c.Unlocked()).To(BeFalse())
		Expect(c.Staging()).To(Equal(StagingPointer{}))
	})

	It("should panic when asked for a window it does not have", func() {
		Expect(func() { c.Window(RegionNone) }).To(Panic())
	})

	It("should unlock after the three sentinels are written", func() {
		c.WriteReg(RegRegionKey, 0xAA55AA55, 4)
		c.WriteReg(RegParamKey, 0x55AA55AA, 4)
		Expect(c.Unlocked()).To(BeFalse())

		c.WriteReg(RegGlobalKey, 0xA5A55A5A, 4)

		Expect(c.Unlocked()).To(BeTrue())
		Expect(c.KeyMask()).To(Equal(KeyState(7)))
	})

	It("should track the latest write of every key", func() {
		rng := rand.New(rand.NewSource(1))
		keys := Keys()
		last := map[Key]bool{}

		for i := 0; i < 1000; i++ {
			k := keys[rng.Intn(len(keys))]
			match := rng.Intn(2) == 0

			value := k.Sentinel()
			if !match {
				value ^= uint64(rng.Uint32()) | 1
			}
			c.WriteReg(k.Register(), value, 4)
			last[k] = match

			Expect(c.KeyMask().Has(k)).To(Equal(match))
			Expect(c.Unlocked()).
				To(Equal(last[KeyRegion] && last[KeyParam] && last[KeyGlobal]))
		}
	})

	It("should erase the page buffer but not the storage with opcode 2", func() {
		unlock(c)

		c.Window(RegionUserCode).Write(0x100, 0x11223344, 4)
		Expect(c.PageBuffer()[0x100:0x104]).
			To(Equal([]byte{0x11, 0x22, 0x33, 0x44}))

		c.WriteReg(RegOperation, 0x57AF6C02, 4)

		Expect(c.PageBuffer()).To(Equal(bytes.Repeat([]byte{0xFF}, PageSize)))
		Expect(c.EInt()).To(BeTrue())
		Expect(c.ReadReg(RegStatus, 4)).To(Equal(StatusEInt))
		Expect(c.Window(RegionUserCode).Read(0x100, 4)).
			To(Equal(uint64(0xFFFFFFFF)))
	})

	It("should program the staged page with opcode 4", func() {
		unlock(c)
		w := c.Window(RegionUserParam)
		for offset := uint64(0); offset < PageSize; offset += 4 {
			w.Write(offset, 0x01020300|offset>>2, 4)
		}

		c.WriteReg(RegOperation, 0x57AF6C04, 4)

		Expect(readAll(c, RegionUserParam)).To(Equal(c.PageBuffer()))
		Expect(w.Read(0x1FC, 4)).To(Equal(uint64(0x0102037F)))
		Expect(w.Read(0x1FE, 2)).To(Equal(uint64(0x037F)))
		Expect(c.EInt()).To(BeTrue())
	})

	It("should reject operations after a wrong sentinel", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0x200, 0, 4)

		c.WriteReg(RegRegionKey, 0xDEADBEEF, 4)
		Expect(c.KeyMask().Has(KeyRegion)).To(BeFalse())
		Expect(c.Unlocked()).To(BeFalse())

		trigger(c, OpErasePage)
		trigger(c, OpProgram)

		Expect(c.EInt()).To(BeFalse())
		Expect(c.Window(RegionUserCode).Read(0x200, 4)).
			To(Equal(uint64(0xFFFFFFFF)))
		Expect(posNames()).
			To(Equal([]string{"NVMGuestError", "NVMGuestError"}))
	})

	It("should drop stores outside the region", func() {
		unlock(c)

		c.Window(RegionUserCode).Write(0x50000, 0x12345678, 4)
		trigger(c, OpErasePage)

		Expect(c.Staging()).To(Equal(StagingPointer{}))
		Expect(c.EInt()).To(BeFalse())
		Expect(readAll(c, RegionUserCode)).
			To(Equal(bytes.Repeat([]byte{0xFF}, 0x49000)))
		Expect(ctxs).To(HaveLen(2))
		Expect(ctxs[0].Pos).To(BeIdenticalTo(HookPosGuestError))
		Expect(ctxs[0].Detail.(hooking.Note).Msg).To(Equal("store out of range"))
		Expect(ctxs[1].Detail.(hooking.Note).Msg).
			To(Equal("unknown region to operate"))
	})

	It("should drop stores across the end of the region", func() {
		unlock(c)

		Expect(c.Stage(RegionUserParam, 0x1FE, 0)).To(BeFalse())
		Expect(c.Stage(RegionUserParam, 0x200, 0)).To(BeFalse())
		Expect(c.Stage(RegionUserParam, 0x102, 0)).To(BeFalse())
		Expect(c.Stage(RegionNone, 0, 0)).To(BeFalse())
		Expect(c.Stage(RegionUserParam, 0x1FC, 0)).To(BeTrue())
	})

	It("should reject a page beyond the region", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0x40, 0xAABBCCDD, 4)

		s := c.SnapshotState().(Snapshot)
		s.Staging = StagingPointer{Region: RegionUserCode, Addr: 0x49004}
		Expect(c.RestoreState(s)).To(Succeed())
		before := c.SnapshotState()

		for _, op := range []uint8{OpEraseBuffer, OpProgram, OpErasePage} {
			trigger(c, op)
		}

		Expect(c.SnapshotState()).To(Equal(before))
		Expect(ctxs).To(HaveLen(3))
		for _, ctx := range ctxs {
			Expect(ctx.Detail.(hooking.Note).Msg).To(Equal("address out of range"))
		}
	})

	It("should change nothing while locked", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0x404, 0x01020304, 4)
		c.WriteReg(RegGlobalKey, 0, 4)
		before := c.SnapshotState()

		c.Window(RegionUserCode).Write(0x408, 0x05060708, 4)
		c.Window(RegionUserParam).Write(0, 0x05060708, 4)
		for op := uint8(0); op < 16; op++ {
			trigger(c, op)
		}

		Expect(c.SnapshotState()).To(Equal(before))
		Expect(c.EInt()).To(BeFalse())
	})

	It("should erase exactly one page with opcode 10", func() {
		s := mem.NewStorageWithFill(0x1000, 4*mem.KB, 0)
		c = MakeBuilder().WithUserCodeStorage(s).Build("NVM")
		unlock(c)

		c.Window(RegionUserCode).Write(0x404, 0x01020304, 4)
		trigger(c, OpErasePage)

		data := readAll(c, RegionUserCode)
		Expect(data[:0x400]).To(Equal(make([]byte, 0x400)))
		Expect(data[0x400:0x600]).To(Equal(bytes.Repeat([]byte{0xFF}, PageSize)))
		Expect(data[0x600:]).To(Equal(make([]byte, 0xA00)))
		Expect(c.EInt()).To(BeTrue())
	})

	DescribeTable("program opcodes",
		func(opcode uint8) {
			unlock(c)
			w := c.Window(RegionUserCode)
			for offset := uint64(0x800); offset < 0xA00; offset += 4 {
				w.Write(offset, offset*3, 4)
			}
			staged := c.PageBuffer()

			trigger(c, opcode)

			data := readAll(c, RegionUserCode)
			Expect(data[0x800:0xA00]).To(Equal(staged))
			Expect(data[:0x800]).To(Equal(bytes.Repeat([]byte{0xFF}, 0x800)))
			Expect(data[0xA00:]).
				To(Equal(bytes.Repeat([]byte{0xFF}, 0x49000-0xA00)))
			Expect(ctxs).To(HaveLen(1))
			Expect(ctxs[0].Pos).To(BeIdenticalTo(HookPosOperation))
			Expect(ctxs[0].Item).To(Equal(Operation{
				Opcode: opcode,
				Kind:   OpKindProgramPage,
				Region: RegionUserCode,
				Page:   0x800,
			}))
		},
		Entry("4", OpProgram),
		Entry("5", OpProgram5),
		Entry("12", OpProgram12),
		Entry("14", OpProgram14),
	)

	It("should share the staging pointer between the regions", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0x600, 0x11111111, 4)
		c.Window(RegionUserParam).Write(0x4, 0x22222222, 4)

		trigger(c, OpProgram)

		Expect(c.Staging()).
			To(Equal(StagingPointer{Region: RegionUserParam, Addr: 4}))
		Expect(c.Window(RegionUserParam).Read(0, 8)).
			To(Equal(uint64(0x1111111122222222)))
		Expect(c.Window(RegionUserCode).Read(0x600, 4)).
			To(Equal(uint64(0xFFFFFFFF)))
	})

	It("should ignore triggers without the magic", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0, 0, 4)

		c.WriteReg(RegOperation, 0x57AF6D04, 4)
		c.WriteReg(RegOperation, 0x4, 4)

		Expect(c.EInt()).To(BeFalse())
		Expect(c.Window(RegionUserCode).Read(0, 4)).To(Equal(uint64(0xFFFFFFFF)))
		Expect(posNames()).
			To(Equal([]string{"NVMGuestError", "NVMGuestError"}))
	})

	It("should report unknown opcodes without side effects", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0, 0, 4)

		trigger(c, 3)

		Expect(c.EInt()).To(BeFalse())
		Expect(posNames()).To(Equal([]string{"NVMUnimp"}))
	})

	It("should clear eint only on a status write with bit 1 clear", func() {
		unlock(c)
		c.Window(RegionUserCode).Write(0, 0, 4)
		trigger(c, OpEraseBuffer)

		c.WriteReg(RegStatus, 0xFFFFFFFF, 4)
		Expect(c.EInt()).To(BeTrue())

		c.WriteReg(RegStatus, 0xFFFFFFFD, 4)
		Expect(c.EInt()).To(BeFalse())
		Expect(c.ReadReg(RegStatus, 4)).To(Equal(uint64(0)))
	})

	It("should reject stores that are not 4 bytes wide", func() {
		unlock(c)

		c.Window(RegionUserCode).Write(0x10, 0x1122, 2)
		c.Window(RegionUserCode).Write(0x10, 0x11, 1)

		Expect(c.Staging()).To(Equal(StagingPointer{}))
		Expect(c.PageBuffer()[0x10]).To(Equal(byte(0)))
		Expect(posNames()).
			To(Equal([]string{"NVMGuestError", "NVMGuestError"}))
	})

	It("should report reads out of the window", func() {
		Expect(c.Window(RegionUserParam).Read(0x1FE, 4)).To(Equal(uint64(0)))
		Expect(posNames()).To(Equal([]string{"NVMGuestError"}))
	})

	It("should report unknown registers", func() {
		Expect(c.ReadReg(0x08, 4)).To(Equal(uint64(0)))
		c.WriteReg(0x30, 1, 4)

		Expect(posNames()).To(Equal([]string{"NVMUnimp", "NVMUnimp"}))
	})

	It("should keep storage and page buffer across reset", func() {
		unlock(c)
		c.Window(RegionUserParam).Write(0, 0xCAFEBABE, 4)
		trigger(c, OpProgram)

		c.Reset()

		Expect(c.Unlocked()).To(BeFalse())
		Expect(c.KeyMask()).To(Equal(KeyState(0)))
		Expect(c.EInt()).To(BeFalse())
		Expect(c.PageBuffer()[:4]).To(Equal([]byte{0xCA, 0xFE, 0xBA, 0xBE}))
		Expect(c.Window(RegionUserParam).Read(0, 4)).To(Equal(uint64(0xCAFEBABE)))
	})

	It("should report a storage failure and not raise eint", func() {
		storage := NewMockStorage(mockCtrl)
		storage.EXPECT().Capacity().Return(uint64(0x1000)).AnyTimes()
		storage.EXPECT().
			Write(uint64(0x200), gomock.Len(PageSize)).
			Return(errors.New("worn out"))

		c = MakeBuilder().WithUserCodeStorage(storage).Build("NVM")
		c.AcceptHook(hook)
		unlock(c)
		c.Window(RegionUserCode).Write(0x200, 0, 4)

		trigger(c, OpProgram)

		Expect(c.EInt()).To(BeFalse())
		Expect(ctxs).To(HaveLen(1))
		Expect(ctxs[0].Detail.(hooking.Note).Msg).
			To(Equal("storage rejected page write"))
	})

	Context("snapshot", func() {
		It("should restore into a fresh controller", func() {
			unlock(c)
			c.Window(RegionUserCode).Write(0x1000, 0x0BADF00D, 4)
			trigger(c, OpProgram)
			c.Window(RegionUserParam).Write(0x8, 0x12345678, 4)

			restored := MakeBuilder().Build("NVM")
			Expect(restored.RestoreState(c.SnapshotState())).To(Succeed())

			Expect(restored.SnapshotState()).To(Equal(c.SnapshotState()))
			Expect(restored.Unlocked()).To(BeTrue())
			Expect(restored.EInt()).To(BeTrue())
			Expect(restored.Window(RegionUserCode).Read(0x1000, 4)).
				To(Equal(uint64(0x0BADF00D)))
		})

		It("should accept a pointer", func() {
			s := c.SnapshotState().(Snapshot)
			s.Keys = 0xFF

			Expect(c.RestoreState(&s)).To(Succeed())
			Expect(c.KeyMask()).To(Equal(KeyState(7)))
		})

		It("should reject mismatched images", func() {
			s := c.SnapshotState().(Snapshot)
			s.UserParam = make([]byte, 1024)
			Expect(c.RestoreState(s)).ToNot(Succeed())

			s = c.SnapshotState().(Snapshot)
			s.PageBuf = nil
			Expect(c.RestoreState(s)).ToNot(Succeed())

			Expect(c.RestoreState(42)).ToNot(Succeed())
		})

		It("should validate without changing the controller", func() {
			s := c.SnapshotState().(Snapshot)
			s.Keys = 0xFF
			Expect(c.ValidateState(s)).To(Succeed())
			Expect(c.Unlocked()).To(BeFalse())

			s.UserCode = s.UserCode[:0x100]
			Expect(c.ValidateState(&s)).
				To(MatchError(ContainSubstring("image of 0x100 bytes")))
		})
	})
})

var _ = Describe("Builder", func() {
	It("should panic on a region that is not made of whole pages", func() {
		Expect(func() {
			MakeBuilder().WithUserCodeSize(0x49001).Build("NVM")
		}).To(Panic())
		Expect(func() {
			MakeBuilder().WithUserParamSize(0).Build("NVM")
		}).To(Panic())
	})

	It("should take the region size from the storage", func() {
		c := MakeBuilder().
			WithUserParamStorage(mem.NewStorageWithFill(0x800, 4*mem.KB, 0xFF)).
			Build("NVM")

		Expect(c.Region(RegionUserParam).Size()).To(Equal(uint64(0x800)))
	})

	It("should configure from a spec", func() {
		c := MakeBuilder().
			WithSpec(Spec{UserCodeSize: 0x1000, UserParamSize: 0x400}).
			Build("NVM")

		Expect(c.Region(RegionUserCode).Size()).To(Equal(uint64(0x1000)))
		Expect(c.Region(RegionUserParam).Size()).To(Equal(uint64(0x400)))
	})
})
