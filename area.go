package lftl

// isInData reports whether [addr, addr+size) lies within the area's
// logical data window.
func (ctx *Context) isInData(addr Addr, size uint64) bool {
	return containsAddr(addr, size, ctx.Base, ctx.DataSize)
}

// offsetInData validates addr/size against the data window and
// returns the logical offset.
func (ctx *Context) offsetInData(addr Addr, size uint64) (uint64, error) {
	if addr < ctx.Base || addr >= ctx.Base+Addr(ctx.DataSize) {
		return 0, ctx.fail(ErrFirstNotInData, "")
	}
	offset := uint64(addr - ctx.Base)
	if offset+size > ctx.DataSize {
		return 0, ctx.fail(ErrLastNotInData, "")
	}
	return offset, nil
}

func (ctx *Context) checkAligned(addr Addr, size uint64) error {
	ws := uint64(ctx.writeSize())
	if uint64(addr)%ws != 0 {
		return ctx.fail(ErrBaseMisaligned, "")
	}
	if size%ws != 0 {
		return ctx.fail(ErrSizeMisaligned, "")
	}
	return nil
}

// Format stamps a blank area: erase everything, write version 1 into
// slot 0. NOT tearing-safe: it is one-shot provisioning only, never to
// be used to update a live area.
func (ctx *Context) Format() error {
	if ctx.writeSize() > MaxWriteSize {
		return ctx.fail(ErrWUSizeTooLarge, "")
	}
	totalPages := ctx.AreaSize / ctx.pageSize()
	if err := ctx.nvmErase(ctx.Base, totalPages); err != nil {
		return err
	}
	ctx.currentSlot = 0
	ctx.mounted = true
	if err := ctx.writeMeta(0, slotMeta{Version: 1, Checksum: 0, Checksum2: 0}); err != nil {
		return err
	}
	// The checksum of an all-erased data region with version 1 is not
	// zero, so recompute and fix it up now that data+version are both
	// known (format's single write_meta call above establishes the
	// slot as parseable even mid-format; this second call finalizes
	// the real checksum, matching write_meta's coupling of checksum to
	// data in the original C implementation, where checksum is always
	// computed right before programming).
	checksum, err := ctx.computeSlotChecksum(0, 1)
	if err != nil {
		return err
	}
	return ctx.writeMeta(0, slotMeta{Version: 1, Checksum: checksum, Checksum2: checksum})
}

// nextSlotIndex is the round-robin slot-selection policy.
func (ctx *Context) nextSlotIndex() uint32 {
	return (ctx.currentSlot + 1) % ctx.nSlots()
}

// Read copies size bytes starting at the logical address src (within
// this area's data window) into dst, from the current committed slot.
func (ctx *Context) Read(dst []byte, src Addr, size uint64) error {
	if size == 0 {
		return nil
	}
	if err := ctx.ensureMounted(); err != nil {
		return err
	}
	offset, err := ctx.offsetInData(src, size)
	if err != nil {
		return err
	}
	return ctx.nvmRead(dst[:size], ctx.currentBase()+Addr(offset))
}

// writeUnitRange describes, for one write unit touched by a write
// operation, the slice of that write unit the operation actually
// overwrites.
type writeUnitRange struct {
	wuIndex     uint64 // index of the write unit within the data window
	wuOffset    uint64 // absolute offset (within data window) of this write unit's start
	wuSize      uint64 // size of this write unit (writeSize, or less for a truncated final unit)
	touchStart  uint64 // offset within the write unit where the new data starts
	touchLen    uint64 // number of bytes of new data landing in this unit
	srcOffset   uint64 // offset within the caller-supplied source for this unit's touched bytes
	fullyInside bool   // true if [offset,offset+size) fully covers this write unit
}

// splitWriteUnits decomposes [offset, offset+size) into the write
// units it intersects, for the splice-based unaligned write path
// shared by basicWrite and the transactional write path.
func (ctx *Context) splitWriteUnits(offset, size uint64) []writeUnitRange {
	ws := uint64(ctx.writeSize())
	firstWU := offset / ws
	lastWUExclusive := (offset + size + ws - 1) / ws

	out := make([]writeUnitRange, 0, lastWUExclusive-firstWU)
	for wu := firstWU; wu < lastWUExclusive; wu++ {
		wuStart := wu * ws
		wuSize := ws
		if wuStart+wuSize > ctx.DataSize {
			wuSize = ctx.DataSize - wuStart
		}
		wuEnd := wuStart + wuSize

		touchStart := uint64(0)
		if offset > wuStart {
			touchStart = offset - wuStart
		}
		touchEnd := wuSize
		if offset+size < wuEnd {
			touchEnd = (offset + size) - wuStart
		}
		touchLen := touchEnd - touchStart

		var srcOffset uint64
		if wuStart+touchStart > offset {
			srcOffset = wuStart + touchStart - offset
		}

		out = append(out, writeUnitRange{
			wuIndex:     wu,
			wuOffset:    wuStart,
			wuSize:      wuSize,
			touchStart:  touchStart,
			touchLen:    touchLen,
			srcOffset:   srcOffset,
			fullyInside: touchStart == 0 && touchLen == wuSize,
		})
	}
	return out
}

// basicWrite implements the area's copy-on-write path: stage the whole
// data window into the next slot, splicing in the new bytes, then
// commit the next slot as current.
func (ctx *Context) basicWrite(dst Addr, src Source, size uint64) error {
	if size == 0 {
		return nil
	}
	if err := ctx.ensureMounted(); err != nil {
		return err
	}
	if ctx.tracker != nil {
		return ctx.fail(ErrTransactionOngoing, "")
	}

	offset, err := ctx.offsetInData(dst, size)
	if err != nil {
		return err
	}

	nextIndex := ctx.nextSlotIndex()
	if nextIndex == ctx.currentSlot {
		return ctx.fail(ErrInternal, "next slot equals current slot")
	}
	currentBase := ctx.currentBase()
	nextBase := ctx.slotBase(nextIndex)

	if err := ctx.nvmErase(nextBase, ctx.nPagesInSlot()); err != nil {
		return err
	}

	units := ctx.splitWriteUnits(offset, size)
	firstWUOffset := uint64(0)
	if len(units) > 0 {
		firstWUOffset = units[0].wuOffset
	} else {
		firstWUOffset = offset
	}

	// Prefix: [0, firstWUOffset) copied straight from the current slot.
	if firstWUOffset > 0 {
		if err := ctx.copyRange(nextBase, currentBase, 0, firstWUOffset); err != nil {
			return err
		}
	}

	if err := ctx.programWriteUnits(nextBase, currentBase, units, src); err != nil {
		return err
	}

	// Suffix: [lastWUEnd, DataSize) copied straight from the current slot.
	lastWUEnd := firstWUOffset
	if len(units) > 0 {
		last := units[len(units)-1]
		lastWUEnd = last.wuOffset + last.wuSize
	}
	if lastWUEnd < ctx.DataSize {
		if err := ctx.copyRange(nextBase, currentBase, lastWUEnd, ctx.DataSize-lastWUEnd); err != nil {
			return err
		}
	}

	return ctx.commitNewSlot(nextIndex)
}

// copyRange copies n bytes from currentBase+off to nextBase+off,
// routing through a volatile buffer (the accessor contract forbids
// source/destination overlap, and current/next always live in
// different slots so this is always safe).
func (ctx *Context) copyRange(nextBase, currentBase Addr, off, n uint64) error {
	const chunk = 4096
	buf := make([]byte, chunk)
	for n > 0 {
		c := n
		if c > chunk {
			c = chunk
		}
		if err := ctx.nvmRead(buf[:c], currentBase+Addr(off)); err != nil {
			return err
		}
		if err := ctx.nvmWrite(nextBase+Addr(off), buf[:c]); err != nil {
			return err
		}
		off += c
		n -= c
	}
	return nil
}

// programWriteUnits writes each write unit touched by the operation
// into nextBase, splicing in surrounding bytes read from currentBase
// when a unit is only partially covered by the new data (the unaligned
// unaligned head/tail splicing, generalized to every unit in range
// rather than just the first/last).
func (ctx *Context) programWriteUnits(nextBase, currentBase Addr, units []writeUnitRange, src Source) error {
	for _, u := range units {
		var unit []byte
		if u.fullyInside {
			unit = make([]byte, u.wuSize)
			if err := src.readAt(ctx, unit, u.srcOffset); err != nil {
				return err
			}
		} else {
			unit = make([]byte, u.wuSize)
			if err := ctx.nvmRead(unit, currentBase+Addr(u.wuOffset)); err != nil {
				return err
			}
			if err := src.readAt(ctx, unit[u.touchStart:u.touchStart+u.touchLen], u.srcOffset); err != nil {
				return err
			}
		}
		if err := ctx.nvmWrite(nextBase+Addr(u.wuOffset), unit); err != nil {
			return err
		}
	}
	return nil
}

// commitNewSlot stamps version+1 into the staged slot and installs it
// as current.
func (ctx *Context) commitNewSlot(index uint32) error {
	currentVersion, err := ctx.readVersion(ctx.currentSlot)
	if err != nil {
		return err
	}
	checksum, err := ctx.computeSlotChecksum(index, currentVersion+1)
	if err != nil {
		return err
	}
	if err := ctx.writeMeta(index, slotMeta{
		Version:   currentVersion + 1,
		Checksum:  checksum,
		Checksum2: checksum,
	}); err != nil {
		return err
	}
	ctx.currentSlot = index
	return nil
}

// EraseAll sets the entire data window to the NVM's erased-state byte
// (0xFF) through the same copy-on-write path a write uses.
func (ctx *Context) EraseAll() error {
	if err := ctx.ensureMounted(); err != nil {
		return err
	}
	if ctx.tracker != nil {
		return ctx.fail(ErrTransactionOngoing, "")
	}
	return ctx.basicWrite(ctx.Base, fillSource(0xFF), ctx.DataSize)
}
