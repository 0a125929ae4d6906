package lftl

// registeredAreas is the process-level list of registered areas.
// Lookup is a finite traversal of every registered area. Mutated only
// by InitLib and RegisterArea, which are expected to run before any
// area operation.
var registeredAreas []*Context

// InitLib discards any previously registered areas. Call it before any
// other function except the meta-information API (Version, BuildType).
func InitLib() {
	registeredAreas = nil
}

// RegisterArea adds ctx to the registry. Once registered, a write whose
// source points into ctx's data window is resolved through ctx's
// current slot without the caller having to buffer it.
func RegisterArea(ctx *Context) error {
	if ctx.writeSize() > MaxWriteSize {
		return ctx.fail(ErrWUSizeTooLarge, "")
	}
	registeredAreas = append(registeredAreas, ctx)
	return nil
}

// Lookup returns the registered area owning addr, if any.
func Lookup(addr Addr) (*Context, bool) {
	return lookupArea(addr, 0)
}

// lookupArea is the registry's first pass: areas are preferred over a
// raw-NVM hit, since an area's data window and its own physical slot
// storage necessarily overlap the same NVM.
func lookupArea(addr Addr, size uint64) (*Context, bool) {
	for _, a := range registeredAreas {
		if a.isInData(addr, size) {
			return a, true
		}
	}
	return nil, false
}

// lookupRawNVM is the registry's second pass: the union of every
// registered area's NVMProps range, for addresses outside any area's
// logical data window.
func lookupRawNVM(addr Addr, size uint64) (*Context, bool) {
	for _, a := range registeredAreas {
		if containsAddr(addr, size, a.NVMProps.Base, a.NVMProps.Size) {
			return a, true
		}
	}
	return nil, false
}
