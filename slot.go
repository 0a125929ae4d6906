package lftl

// computeSlotChecksum digests the data bytes of slot index together
// with version.
func (ctx *Context) computeSlotChecksum(index uint32, version uint32) (uint32, error) {
	base := ctx.slotBase(index)
	return computeChecksum(func(dst []byte, off uint64, n uint64) error {
		return ctx.nvmRead(dst, base+Addr(off))
	}, ctx.DataSize, version)
}

// slotIntegrityOK reports whether slot index's stored checksum matches
// the checksum recomputed from its data and version.
func (ctx *Context) slotIntegrityOK(index uint32, meta slotMeta) (bool, error) {
	computed, err := ctx.computeSlotChecksum(index, meta.Version)
	if err != nil {
		return false, err
	}
	return computed == meta.Checksum, nil
}

// mount runs the slot selector: scan every slot, reject torn or
// superseded versions, elect the highest-versioned intact slot, and
// repair a torn checksum2 if found.
func (ctx *Context) mount() error {
	ns := ctx.nSlots()

	versionCounts := make(map[uint32]int, ns)
	type candidate struct {
		index   uint32
		version uint32
	}
	var candidates []candidate

	for i := uint32(0); i < ns; i++ {
		version, err := ctx.readVersion(i)
		if err != nil {
			return err
		}
		if version == erasedVersion {
			continue
		}
		versionCounts[version]++
		if versionCounts[version] > 1 {
			return ctx.fail(ErrVersionCollision, "")
		}
		candidates = append(candidates, candidate{index: i, version: version})
	}

	var electedIndex uint32
	found := false

	// Repeatedly take the remaining candidate with the highest version
	// and test its integrity, falling through to the next-highest on
	// failure. There are at most a handful of slots per area, so no
	// need to pre-sort.
	remaining := append([]candidate(nil), candidates...)
	for len(remaining) > 0 {
		bestPos := 0
		for i := 1; i < len(remaining); i++ {
			if remaining[i].version > remaining[bestPos].version {
				bestPos = i
			}
		}
		best := remaining[bestPos]
		meta, err := ctx.readMeta(best.index)
		if err != nil {
			return err
		}
		ok, err := ctx.slotIntegrityOK(best.index, meta)
		if err != nil {
			return err
		}
		if ok {
			electedIndex = best.index
			found = true
			break
		}
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}

	if !found {
		return ctx.fail(ErrNoValidVersion, "")
	}

	meta, err := ctx.readMeta(electedIndex)
	if err != nil {
		return err
	}
	if meta.Checksum2 != meta.Checksum {
		// A tear happened mid-footer: data and checksum were fully
		// staged (checksum already matches the data), only checksum2
		// needs repair.
		if err := ctx.repairChecksum2(electedIndex, meta.Checksum); err != nil {
			return err
		}
	}

	ctx.currentSlot = electedIndex
	ctx.mounted = true
	return nil
}
