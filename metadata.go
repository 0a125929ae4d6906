package lftl

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

// metaByteOrder is the wire encoding of the metadata footer:
// little-endian.
var metaByteOrder = binary.LittleEndian

const metaItemCount = 3

// slotMeta is the three-item metadata footer of a slot.
type slotMeta struct {
	Version   uint32
	Checksum  uint32
	Checksum2 uint32
}

// erasedVersion marks a slot that has never been stamped.
const erasedVersion uint32 = 0xFFFFFFFF

// cellSize is the per-item footer cell width: each of the three
// metadata items gets its own write-unit-sized cell so it can be
// programmed independently, but never narrower than 4 bytes since each
// item is itself a uint32.
func cellSize(writeSize uint32) uint32 {
	if writeSize > 4 {
		return writeSize
	}
	return 4
}

// metaPhySize is the total physical size of a slot's metadata footer.
func metaPhySize(writeSize uint32) uint64 {
	return uint64(metaItemCount) * uint64(cellSize(writeSize))
}

// SlotMetaSize is the exported form of metaPhySize, for hosts sizing an
// area's NVM footprint before a Context exists.
func SlotMetaSize(writeSize uint32) uint64 {
	return metaPhySize(writeSize)
}

// readMeta reads the full footer of slot index.
func (ctx *Context) readMeta(index uint32) (slotMeta, error) {
	cs := cellSize(ctx.writeSize())
	buf := make([]byte, metaPhySize(ctx.writeSize()))
	if err := ctx.nvmRead(buf, ctx.metaAddr(index)); err != nil {
		return slotMeta{}, err
	}
	return slotMeta{
		Version:   metaByteOrder.Uint32(buf[0*cs:]),
		Checksum:  metaByteOrder.Uint32(buf[1*cs:]),
		Checksum2: metaByteOrder.Uint32(buf[2*cs:]),
	}, nil
}

// readVersion reads just the version word, the only thing the slot
// selector's first pass needs.
func (ctx *Context) readVersion(index uint32) (uint32, error) {
	buf := make([]byte, 4)
	if err := ctx.nvmRead(buf, ctx.metaAddr(index)); err != nil {
		return 0, err
	}
	return metaByteOrder.Uint32(buf), nil
}

// encodeMetaCells packs m into the physical cell layout: each item's
// low 4 bytes carry its value, any remaining bytes in a wider cell are
// zero (padding is programmed as zero on first write).
func encodeMetaCells(m slotMeta, writeSize uint32) []byte {
	cs := cellSize(writeSize)
	buf := make([]byte, metaItemCount*cs)

	packed, err := restruct.Pack(metaByteOrder, &m)
	if err != nil {
		// m is a fixed 3xuint32 struct; restruct cannot fail packing it.
		panic(err)
	}

	copy(buf[0*cs:0*cs+4], packed[0:4])
	copy(buf[1*cs:1*cs+4], packed[4:8])
	copy(buf[2*cs:2*cs+4], packed[8:12])
	return buf
}

// writeMeta programs a slot's footer in two phases: (version,
// checksum) together, then checksum2 separately, so that a tear
// between the phases is detectable on the next mount.
func (ctx *Context) writeMeta(index uint32, m slotMeta) error {
	cs := cellSize(ctx.writeSize())
	buf := encodeMetaCells(m, ctx.writeSize())
	base := ctx.metaAddr(index)

	if err := ctx.nvmWrite(base, buf[:2*cs]); err != nil {
		return err
	}
	return ctx.nvmWrite(base+Addr(2*cs), buf[2*cs:3*cs])
}

// repairChecksum2 reprograms only the checksum2 cell, the slot
// selector's tear-recovery step.
func (ctx *Context) repairChecksum2(index uint32, checksum uint32) error {
	cs := cellSize(ctx.writeSize())
	buf := make([]byte, cs)
	metaByteOrder.PutUint32(buf[0:4], checksum)
	return ctx.nvmWrite(ctx.metaAddr(index)+Addr(2*cs), buf)
}
