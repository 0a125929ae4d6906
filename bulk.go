package lftl

// FillTransactional sets the entire data window to value by driving a
// single transaction over every write unit, rather than the
// copy-on-write splice EraseAll uses. It is the transactional
// counterpart used to zero-initialize an area right after Format.
func (ctx *Context) FillTransactional(value byte) error {
	tracker := make([]byte, TrackerSize(ctx.DataSize, ctx.writeSize()))
	if err := ctx.TransactionStart(tracker); err != nil {
		return err
	}
	if err := ctx.TransactionWriteAny(ctx.Base, fillSource(value), ctx.DataSize); err != nil {
		ctx.tracker = nil
		return err
	}
	return ctx.TransactionCommit()
}

// ReadAll reads the whole data window into dst, which must be at least
// DataSize bytes long.
func (ctx *Context) ReadAll(dst []byte) error {
	return ctx.Read(dst, ctx.Base, ctx.DataSize)
}

// WriteAll writes src, which must cover the whole data window, as one
// aligned write.
func (ctx *Context) WriteAll(src Source) error {
	return ctx.Write(ctx.Base, src, ctx.DataSize)
}
