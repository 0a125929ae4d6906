package lftl

// Context is the runtime state for one LFTL area. The caller allocates
// and owns it; every field listed here as host-supplied must be set
// before first use.
type Context struct {
	// NVMProps describes the physical NVM backing this area.
	NVMProps *NVMProps
	// Base is the area's address: both the start of its physical
	// slot storage and the start of its logical data window.
	Base Addr
	// AreaSize is the total size, in bytes, of the area (all slots).
	AreaSize uint64
	// DataSize is the size, in bytes, of the area's logical data.
	DataSize uint64
	// Accessor drives the physical NVM for this area.
	Accessor Accessor
	// ErrorHandler, if set, is invoked on every fatal condition before
	// the corresponding error is returned.
	ErrorHandler ErrorHandler

	mounted     bool
	currentSlot uint32

	// tracker is non-nil while a transaction is active; its length is
	// TrackerSize(DataSize, NVMProps.WriteSize).
	tracker []byte
	// next is the slot index staged by TransactionStart, valid only
	// while tracker is non-nil.
	next uint32
}

func (ctx *Context) writeSize() uint32 { return ctx.NVMProps.WriteSize }
func (ctx *Context) pageSize() uint64  { return uint64(ctx.NVMProps.EraseSize) }

func (ctx *Context) metaPhySize() uint64 { return metaPhySize(ctx.writeSize()) }

func (ctx *Context) nPagesInSlot() uint64 {
	minSize := ctx.DataSize + ctx.metaPhySize()
	return (minSize + ctx.pageSize() - 1) / ctx.pageSize()
}

func (ctx *Context) slotSize() uint64 { return ctx.nPagesInSlot() * ctx.pageSize() }

func (ctx *Context) nSlots() uint32 { return uint32(ctx.AreaSize / ctx.slotSize()) }

func (ctx *Context) slotBase(index uint32) Addr {
	return ctx.Base + Addr(uint64(index)*ctx.slotSize())
}

func (ctx *Context) metaOffset() uint64 { return ctx.slotSize() - ctx.metaPhySize() }

func (ctx *Context) metaAddr(index uint32) Addr {
	return ctx.slotBase(index) + Addr(ctx.metaOffset())
}

func (ctx *Context) currentBase() Addr { return ctx.slotBase(ctx.currentSlot) }

func (ctx *Context) fail(code Code, detail string) error {
	return newError(ctx.ErrorHandler, code, detail)
}

func (ctx *Context) nvmErase(base Addr, nPages uint64) error {
	if nPages == 0 {
		return nil
	}
	if status := ctx.Accessor.Erase(base, uint32(nPages)); status != 0 {
		return ctx.fail(ErrLowLevelErase|Code(status), "")
	}
	return nil
}

func (ctx *Context) nvmWrite(dst Addr, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	if status := ctx.Accessor.Write(dst, src); status != 0 {
		return ctx.fail(ErrLowLevelWrite|Code(status), "")
	}
	return nil
}

func (ctx *Context) nvmRead(dst []byte, src Addr) error {
	if len(dst) == 0 {
		return nil
	}
	if status := ctx.Accessor.Read(dst, src); status != 0 {
		return ctx.fail(ErrLowLevelRead|Code(status), "")
	}
	return nil
}

// ensureMounted resolves the current slot lazily, the first time any
// data operation needs it.
func (ctx *Context) ensureMounted() error {
	if ctx.mounted {
		return nil
	}
	return ctx.mount()
}
