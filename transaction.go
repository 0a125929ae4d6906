package lftl

// TrackerSize returns the byte length a caller must allocate for the
// transaction tracker bitmap of an area with the given data size and
// write unit size: one bit per write unit, rounded up to a whole byte.
func TrackerSize(dataSize uint64, writeSize uint32) uint64 {
	wuCount := (dataSize + uint64(writeSize) - 1) / uint64(writeSize)
	return (wuCount + 7) / 8
}

func trackerBit(tracker []byte, wu uint64) bool {
	return tracker[wu/8]&(1<<(wu%8)) != 0
}

func trackerSet(tracker []byte, wu uint64) {
	tracker[wu/8] |= 1 << (wu % 8)
}

// TransactionStart begins a transaction on ctx: tracker becomes the
// caller-owned dirty bitmap (zeroed here), and the next slot is erased
// in preparation for staged writes. The current slot is left untouched
// until commit, so reads against it keep working throughout.
func (ctx *Context) TransactionStart(tracker []byte) error {
	if err := ctx.ensureMounted(); err != nil {
		return err
	}
	if ctx.tracker != nil {
		return ctx.fail(ErrTransactionOngoing, "")
	}
	want := TrackerSize(ctx.DataSize, ctx.writeSize())
	if uint64(len(tracker)) != want {
		return ctx.fail(ErrInternal, "tracker size does not match TrackerSize(DataSize, WriteSize)")
	}
	for i := range tracker {
		tracker[i] = 0
	}

	nextIndex := ctx.nextSlotIndex()
	if err := ctx.nvmErase(ctx.slotBase(nextIndex), ctx.nPagesInSlot()); err != nil {
		return err
	}

	ctx.tracker = tracker
	ctx.next = nextIndex
	return nil
}

// transactionActive reports whether a transaction is currently open on ctx.
func (ctx *Context) transactionActive() bool { return ctx.tracker != nil }

// TransactionWriteAligned stages src at dst, which must be write-unit
// aligned in both address and size. It fails if any touched write unit
// was already staged earlier in this transaction.
func (ctx *Context) TransactionWriteAligned(dst Addr, src Source, size uint64) error {
	if !ctx.transactionActive() {
		return ctx.fail(ErrNoTransaction, "")
	}
	if err := ctx.checkAligned(dst, size); err != nil {
		return err
	}
	offset, err := ctx.offsetInData(dst, size)
	if err != nil {
		return err
	}
	return ctx.transactionWriteRange(offset, size, src)
}

// TransactionWriteAny stages src at dst like TransactionWriteAligned
// but allows unaligned dst/size, splicing the partially-touched head
// and tail write units against the current slot's contents.
func (ctx *Context) TransactionWriteAny(dst Addr, src Source, size uint64) error {
	if !ctx.transactionActive() {
		return ctx.fail(ErrNoTransaction, "")
	}
	offset, err := ctx.offsetInData(dst, size)
	if err != nil {
		return err
	}
	return ctx.transactionWriteRange(offset, size, src)
}

// transactionWriteRange implements both transactional write entry
// points: the split into write units degenerates to whole, fully
// covered units when offset/size are aligned, matching the aligned
// write's "no surround copy" behavior automatically.
func (ctx *Context) transactionWriteRange(offset, size uint64, src Source) error {
	units := ctx.splitWriteUnits(offset, size)
	for _, u := range units {
		if trackerBit(ctx.tracker, u.wuIndex) {
			return ctx.fail(ErrTransactionOverwrite, "")
		}
	}

	nextBase := ctx.slotBase(ctx.next)
	currentBase := ctx.currentBase()
	if err := ctx.programWriteUnits(nextBase, currentBase, units, src); err != nil {
		return err
	}
	for _, u := range units {
		trackerSet(ctx.tracker, u.wuIndex)
	}
	return nil
}

// TransactionRead reads size bytes at dst honoring the in-flight view:
// a write unit staged earlier in the transaction is read from the next
// slot, an untouched one from the current slot.
func (ctx *Context) TransactionRead(dst []byte, src Addr, size uint64) error {
	if !ctx.transactionActive() {
		return ctx.fail(ErrNoTransaction, "")
	}
	offset, err := ctx.offsetInData(src, size)
	if err != nil {
		return err
	}
	return ctx.readNewerRange(dst, offset, size)
}

// readNewerRange services ReadNewer both during and outside a
// transaction: outside one, every write unit is untouched by
// definition, so it degenerates to a plain current-slot read.
func (ctx *Context) readNewerRange(dst []byte, offset, size uint64) error {
	if !ctx.transactionActive() {
		return ctx.nvmRead(dst, ctx.currentBase()+Addr(offset))
	}

	ws := uint64(ctx.writeSize())
	currentBase := ctx.currentBase()
	nextBase := ctx.slotBase(ctx.next)

	pos := uint64(0)
	for pos < size {
		abs := offset + pos
		wu := abs / ws
		wuStart := wu * ws
		runEnd := size
		if wuStart+ws-abs < runEnd-pos {
			runEnd = pos + (wuStart + ws - abs)
		}
		n := runEnd - pos

		base := currentBase
		if trackerBit(ctx.tracker, wu) {
			base = nextBase
		}
		if err := ctx.nvmRead(dst[pos:pos+n], base+Addr(abs)); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

// TransactionCommit fills every write unit the transaction left
// untouched by copying it from the current slot, stamps the next
// slot's metadata with version+1, and installs it as current.
func (ctx *Context) TransactionCommit() error {
	if !ctx.transactionActive() {
		return ctx.fail(ErrNoTransaction, "")
	}
	ws := uint64(ctx.writeSize())
	wuCount := (ctx.DataSize + ws - 1) / ws
	currentBase := ctx.currentBase()
	nextBase := ctx.slotBase(ctx.next)

	for wu := uint64(0); wu < wuCount; wu++ {
		if trackerBit(ctx.tracker, wu) {
			continue
		}
		wuStart := wu * ws
		wuSize := ws
		if wuStart+wuSize > ctx.DataSize {
			wuSize = ctx.DataSize - wuStart
		}
		if err := ctx.copyRange(nextBase, currentBase, wuStart, wuSize); err != nil {
			return err
		}
	}

	nextIndex := ctx.next
	if err := ctx.commitNewSlot(nextIndex); err != nil {
		return err
	}
	ctx.tracker = nil
	return nil
}

// TransactionAbort discards the in-flight transaction. The staged next
// slot is left as-is; it will be erased the next time it is selected
// for a write.
func (ctx *Context) TransactionAbort() error {
	if !ctx.transactionActive() {
		return ctx.fail(ErrNoTransaction, "")
	}
	ctx.tracker = nil
	return nil
}
