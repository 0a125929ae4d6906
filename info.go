package lftl

// SlotInfo summarizes one physical slot's on-NVM metadata, for
// diagnostic tooling.
type SlotInfo struct {
	Index     uint32
	Base      Addr
	Version   uint32
	Checksum  uint32
	Checksum2 uint32
	Current   bool
}

// Inspect reads every slot's metadata footer without going through the
// selector, for tools that want to display the raw on-disk state
// (including torn or superseded slots) rather than just the winner.
func (ctx *Context) Inspect() ([]SlotInfo, error) {
	ns := ctx.nSlots()
	out := make([]SlotInfo, 0, ns)
	for i := uint32(0); i < ns; i++ {
		meta, err := ctx.readMeta(i)
		if err != nil {
			return nil, err
		}
		out = append(out, SlotInfo{
			Index:     i,
			Base:      ctx.slotBase(i),
			Version:   meta.Version,
			Checksum:  meta.Checksum,
			Checksum2: meta.Checksum2,
			Current:   ctx.mounted && i == ctx.currentSlot,
		})
	}
	return out, nil
}

// Mount resolves the current slot if it has not been resolved yet.
// Read/Write do this lazily on first use; tools that want to inspect
// mount status without performing a data operation can call it
// directly.
func (ctx *Context) Mount() error { return ctx.ensureMounted() }

// SlotSize returns the physical size, in bytes, of one slot.
func (ctx *Context) SlotSize() uint64 { return ctx.slotSize() }

// NSlots returns the number of slots in the area.
func (ctx *Context) NSlots() uint32 { return ctx.nSlots() }
