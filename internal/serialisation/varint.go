// Package serialisation implements the compact integer, amount and
// script codecs shared by the chainstate and stable memory decoders.
// The formats follow the Bitcoin Core database serialisation exactly;
// any deviation changes the computed digests.
package serialisation

import (
	"errors"
	"io"
	"math"
)

var (
	ErrTruncated      = errors.New("serialisation: truncated input")
	ErrVarintOverflow = errors.New("serialisation: varint exceeds 64 bits")
)

// ReadVarint decodes the variable length integer format used in the
// UTXO database: 7 data bits per byte, high bit set means more bytes
// follow. After each continuation byte the accumulator is incremented
// by one, which makes every value have exactly one encoding.
func ReadVarint(r io.ByteReader) (uint64, error) {
	var n uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}

		if n > math.MaxUint64>>7 {
			return 0, ErrVarintOverflow
		}
		n = n<<7 | uint64(b&0x7f)

		if b&0x80 == 0 {
			return n, nil
		}
		if n == math.MaxUint64 {
			return 0, ErrVarintOverflow
		}
		n++
	}
}

// AppendVarint appends the unique encoding of v to dst.
func AppendVarint(dst []byte, v uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(v & 0x7f)
	for v > 0x7f {
		v = v>>7 - 1
		i--
		tmp[i] = byte(v&0x7f) | 0x80
	}
	return append(dst, tmp[i:]...)
}
