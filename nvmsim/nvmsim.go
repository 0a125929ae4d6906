// Package nvmsim is a host-side stand-in for real flash: an in-memory
// byte array driven through the same erase/write/read contract a
// physical driver would implement, with an optional tearing injector
// for exercising power-fail behavior under test.
package nvmsim

import (
	"os"

	log "github.com/dsoprea/go-logging"

	"github.com/sebastien-riou/lean-ftl"
)

// tornStatus is returned by Write/Erase when the tearing injector cuts
// the operation short, mirroring SIMULATED_TEARING in the reference
// Linux host accessors.
const tornStatus uint8 = 0xFF

// NVM is an in-memory Accessor. The zero value is not usable; build one
// with New.
type NVM struct {
	base      lftl.Addr
	data      []byte
	writeSize uint32
	eraseSize uint32

	tearingCnt       uint64
	tearingTargetCnt uint64

	// SaveFile, if set, is rewritten with the whole backing array after
	// every successful or torn erase/write, the way the reference host
	// accessors persist to disk on every NVM mutation.
	SaveFile string
}

// New allocates an NVM of size bytes starting at base, pre-filled with
// the erased-state byte (0xFF).
func New(base lftl.Addr, size uint64, writeSize, eraseSize uint32) *NVM {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &NVM{
		base:             base,
		data:             data,
		writeSize:        writeSize,
		eraseSize:        eraseSize,
		tearingTargetCnt: ^uint64(0),
	}
}

// Props returns the NVMProps describing this simulated device.
func (n *NVM) Props() lftl.NVMProps {
	return lftl.NVMProps{
		Base:      n.base,
		Size:      uint64(len(n.data)),
		WriteSize: n.writeSize,
		EraseSize: n.eraseSize,
	}
}

// ClearTearing disables the tearing injector: every subsequent
// operation completes in full.
func (n *NVM) ClearTearing() {
	n.tearingCnt = 0
	n.tearingTargetCnt = ^uint64(0)
}

// SetTearingTarget arms the tearing injector: the targetWriteUnit-th
// write unit programmed from this point on (counting across Write and
// Erase calls, each erased page counting as eraseSize/writeSize write
// units) is corrupted instead of completing, simulating a power loss
// mid-operation.
func (n *NVM) SetTearingTarget(targetWriteUnit uint64) {
	n.tearingCnt = 0
	n.tearingTargetCnt = targetWriteUnit * uint64(n.writeSize)
}

// tearingSize reports how many of the trailing bytes of an operation of
// the given size should be corrupted to land exactly on the armed
// target, or 0 if the injector does not fire this time.
func (n *NVM) tearingSize(size uint32) uint32 {
	if n.tearingCnt+uint64(size) > n.tearingTargetCnt {
		out := n.tearingCnt + uint64(size) - n.tearingTargetCnt
		n.tearingCnt = 0
		n.tearingTargetCnt = ^uint64(0)
		return uint32(out)
	}
	n.tearingCnt += uint64(size)
	return 0
}

// tearingSim corrupts the trailing tsize bytes of [off, off+size) if
// the injector fires, preferring corruption over leaving stale data:
// a tear that merely kept the old bytes could go undetected if the old
// and new bytes happened to match.
func (n *NVM) tearingSim(off, size uint32) bool {
	tsize := n.tearingSize(size)
	if tsize == 0 {
		return false
	}
	start := off + size - tsize
	for i := start; i < off+size; i++ {
		n.data[i] ^= 0x55
	}
	return true
}

func (n *NVM) persist() {
	if n.SaveFile == "" {
		return
	}
	err := os.WriteFile(n.SaveFile, n.data, 0o644)
	log.PanicIf(err)
}

// Erase implements lftl.Accessor.
func (n *NVM) Erase(base lftl.Addr, nPages uint32) (status uint8) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			status = 2
		}
	}()

	if nPages == 0 {
		return 0
	}
	size := uint64(nPages) * uint64(n.eraseSize)
	if base < n.base {
		return 1
	}
	off := uint64(base - n.base)
	if off%uint64(n.eraseSize) != 0 {
		return 3
	}
	if off+size > uint64(len(n.data)) {
		return 2
	}

	for i := off; i < off+size; i++ {
		n.data[i] = 0xFF
	}
	torn := n.tearingSim(uint32(off), uint32(size))
	n.persist()
	if torn {
		return tornStatus
	}
	return 0
}

// Write implements lftl.Accessor.
func (n *NVM) Write(dst lftl.Addr, src []byte) (status uint8) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			status = 2
		}
	}()

	size := uint64(len(src))
	if dst < n.base {
		return 1
	}
	off := uint64(dst - n.base)
	if off+size > uint64(len(n.data)) {
		return 2
	}
	if off%uint64(n.writeSize) != 0 {
		return 3
	}
	if size%uint64(n.writeSize) != 0 {
		return 4
	}

	copy(n.data[off:off+size], src)
	torn := n.tearingSim(uint32(off), uint32(size))
	n.persist()
	if torn {
		return tornStatus
	}
	return 0
}

// Read implements lftl.Accessor. Reads are never torn: a real chip
// keeps serving stale-but-consistent bytes through a power event, only
// in-flight programs are at risk.
func (n *NVM) Read(dst []byte, src lftl.Addr) (status uint8) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			log.PrintError(errRaw.(error))
			status = 1
		}
	}()

	off := uint64(src - n.base)
	copy(dst, n.data[off:off+uint64(len(dst))])
	return 0
}

// LoadFile replaces the backing array with the contents of path, which
// must match the NVM's size exactly.
func (n *NVM) LoadFile(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return log.Wrap(err)
	}
	if len(buf) != len(n.data) {
		return log.Errorf("nvm image size %d does not match device size %d", len(buf), len(n.data))
	}
	copy(n.data, buf)
	return nil
}
