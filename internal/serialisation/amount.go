package serialisation

import (
	"errors"
	"math"
)

var ErrAmountOverflow = errors.New("serialisation: amount overflow during decompression")

// amountExponentCap is the maximum number of trailing decimal zeros
// folded into the exponent. Fixed by the reference format; changing it
// breaks digest compatibility.
const amountExponentCap = 9

// CompressAmount maps an output value to its compact code. Multiples
// of powers of ten shrink to very few bytes once varint encoded. The
// code construction wraps uint64 once the zero-stripped value reaches
// about 2^60; every monetary amount sits far below that, and the
// formula cannot change without breaking digest compatibility.
func CompressAmount(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	var e uint64
	for n%10 == 0 && e < amountExponentCap {
		n /= 10
		e++
	}
	if e < amountExponentCap {
		d := n % 10
		n /= 10
		return 1 + (n*9+d-1)*10 + e
	}
	return 1 + (n-1)*10 + amountExponentCap
}

// DecompressAmount is the exact inverse of CompressAmount. Codes not
// produced by CompressAmount can overflow during the exponent loop.
func DecompressAmount(x uint64) (uint64, error) {
	if x == 0 {
		return 0, nil
	}
	x--
	e := x % 10
	x /= 10

	var n uint64
	if e < amountExponentCap {
		d := x%9 + 1
		x /= 9
		n = x*10 + d
	} else {
		n = x + 1
	}

	for i := uint64(0); i < e; i++ {
		if n > math.MaxUint64/10 {
			return 0, ErrAmountOverflow
		}
		n *= 10
	}
	return n, nil
}
