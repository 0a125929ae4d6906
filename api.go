package lftl

// Write dispatches to the basic or transactional write path depending
// on whether a transaction is currently active on ctx, and requires
// dst/size to be write-unit aligned.
func (ctx *Context) Write(dst Addr, src Source, size uint64) error {
	if ctx.transactionActive() {
		return ctx.TransactionWriteAligned(dst, src, size)
	}
	if err := ctx.checkAligned(dst, size); err != nil {
		return err
	}
	return ctx.basicWrite(dst, src, size)
}

// WriteAny is Write without the alignment requirement: unaligned head
// and tail write units are spliced against the current slot's
// contents.
func (ctx *Context) WriteAny(dst Addr, src Source, size uint64) error {
	if ctx.transactionActive() {
		return ctx.TransactionWriteAny(dst, src, size)
	}
	return ctx.basicWrite(dst, src, size)
}

// BasicWrite invokes the copy-on-write path directly, bypassing the
// transaction dispatch Write/WriteAny perform. It fails with
// ErrTransactionOngoing if a transaction is active, where Write and
// WriteAny would instead stage the data in that transaction.
func (ctx *Context) BasicWrite(dst Addr, src Source, size uint64) error {
	return ctx.basicWrite(dst, src, size)
}

// ReadNewer reads size bytes at dst from src, honoring an active
// transaction's in-flight view: a write unit staged so far in the
// transaction reads back its staged value, everything else reads the
// current slot. Outside a transaction it behaves exactly like Read.
func (ctx *Context) ReadNewer(dst []byte, src Addr, size uint64) error {
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
	return ctx.readNewerRange(dst, offset, size)
}

// Memread is the address-agnostic counterpart of Read: src may be a
// logical address inside any registered area or a raw NVM address
// inside a registered area's NVMProps range, resolved automatically.
// Any other address, including one that does not belong to any
// registered NVM, fails with ErrFirstNotInData.
func Memread(dst []byte, src Addr, size uint64) error {
	if size == 0 {
		return nil
	}
	owner, ok := lookupArea(src, size)
	if ok {
		return owner.Read(dst, src, size)
	}
	owner, ok = lookupRawNVM(src, size)
	if !ok {
		return &Error{Code: ErrFirstNotInData, Detail: "address not covered by any registered area"}
	}
	return owner.nvmRead(dst, src)
}

// MemreadNewer is Memread honoring the transaction view of whichever
// area owns src, the same way ReadNewer does for a known area.
func MemreadNewer(dst []byte, src Addr, size uint64) error {
	if size == 0 {
		return nil
	}
	owner, ok := lookupArea(src, size)
	if ok {
		return owner.ReadNewer(dst, src, size)
	}
	owner, ok = lookupRawNVM(src, size)
	if !ok {
		return &Error{Code: ErrFirstNotInData, Detail: "address not covered by any registered area"}
	}
	return owner.nvmRead(dst, src)
}
