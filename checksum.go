package lftl

import "sync"

// checksumPolynomial is the (reflected) CRC-32C-variant polynomial used
// by lean-ftl. It is not the IEEE 802.3 CRC-32C polynomial used by
// hash/crc32's Castagnoli table — it is the project's own constant, so
// the table has to be built by hand rather than borrowed from the
// standard library.
const checksumPolynomial = 0x05EC76F1

// checksumInit is the initial register value: an all-ones word, chosen
// so that an all-erased (0xFF) slot never produces a checksum equal to
// its own version by accident.
const checksumInit = 0xFFFFFFFF

var (
	checksumTableOnce sync.Once
	checksumTable     [256]uint32
)

func buildChecksumTable() {
	for i := 0; i < 256; i++ {
		crc := uint32(i)
		for bit := 0; bit < 8; bit++ {
			mask := -(crc & 1)
			crc = (crc >> 1) ^ (checksumPolynomial & mask)
		}
		checksumTable[i] = crc
	}
}

// crcUpdate folds buf into the running reflected-CRC register crc,
// table-driven the way hash/crc32 builds its own tables, but over
// checksumPolynomial rather than a standard polynomial.
func crcUpdate(crc uint32, buf []byte) uint32 {
	checksumTableOnce.Do(buildChecksumTable)
	for _, b := range buf {
		crc = checksumTable[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}

// checksumReadChunk is the buffer size used to stream data through
// crcUpdate without allocating per-call; mirrors the 128-byte on-stack
// buffer ftl.c's checksum() uses (uint64 buf[16]).
const checksumReadChunk = 128

// computeChecksum digests size bytes starting at src (read through
// readFn, which may be backed by NVM or plain memory) together with
// version: CRC over the data, then integer-added (mod 2^32, i.e.
// ordinary uint32 addition) to version.
func computeChecksum(readFn func(dst []byte, off uint64, n uint64) error, size uint64, version uint32) (uint32, error) {
	crc := uint32(checksumInit)
	var buf [checksumReadChunk]byte
	var off uint64
	for off < size {
		n := size - off
		if n > checksumReadChunk {
			n = checksumReadChunk
		}
		if err := readFn(buf[:n], off, n); err != nil {
			return 0, err
		}
		crc = crcUpdate(crc, buf[:n])
		off += n
	}
	return crc + version, nil
}
