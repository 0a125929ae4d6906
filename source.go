package lftl

// Source is a write's data origin. The original C API took a raw
// pointer for this and let it mean whichever of three things the
// pointer happened to resolve to; Source makes that choice explicit
// instead of relying on address-range sniffing at every call site.
type Source struct {
	bytes    []byte
	addr     Addr
	fromAddr bool
	fill     byte
	fromFill bool
}

// FromBytes builds a Source that reads straight out of a caller-owned
// buffer in RAM.
func FromBytes(b []byte) Source {
	return Source{bytes: b}
}

// FromAddr builds a Source that reads from another address in the
// shared address space: either another registered area's current data
// (resolved through that area's current slot), or a raw NVM address
// outside any area's logical window.
func FromAddr(addr Addr) Source {
	return Source{addr: addr, fromAddr: true}
}

// fillSource builds a Source that reads as an infinite run of the same
// byte value, used by EraseAll to drive the normal copy-on-write path
// without allocating a full-size buffer of 0xFF.
func fillSource(b byte) Source {
	return Source{fill: b, fromFill: true}
}

// readAt fills dst with size-matching bytes starting at offset bytes
// into the source, resolving an address-based source through the area
// registry.
func (s Source) readAt(ctx *Context, dst []byte, offset uint64) error {
	switch {
	case s.fromFill:
		for i := range dst {
			dst[i] = s.fill
		}
		return nil
	case s.fromAddr:
		return readFromAddr(ctx, dst, s.addr+Addr(offset))
	default:
		n := copy(dst, s.bytes[offset:])
		if n != len(dst) {
			return ctx.fail(ErrInternal, "source buffer shorter than requested range")
		}
		return nil
	}
}

// readFromAddr resolves addr against the area registry: if it falls
// inside a registered area's data window, the read goes through that
// area's current slot; otherwise it falls back to whichever registered
// area's raw NVM range covers it, or to ctx's own accessor if none
// does (the single-physical-accessor assumption the original C API
// made implicit by sharing one pointer space across areas).
func readFromAddr(ctx *Context, dst []byte, addr Addr) error {
	size := uint64(len(dst))

	if owner, ok := lookupArea(addr, size); ok {
		if err := owner.ensureMounted(); err != nil {
			return err
		}
		offset, err := owner.offsetInData(addr, size)
		if err != nil {
			return err
		}
		return owner.nvmRead(dst, owner.currentBase()+Addr(offset))
	}

	if owner, ok := lookupRawNVM(addr, size); ok {
		return owner.nvmRead(dst, addr)
	}

	return ctx.nvmRead(dst, addr)
}
