// Package coins decodes the legacy per-transaction UTXO record
// ("CCoins"): all unspent outputs of one transaction, with spent slots
// elided through a spentness bitvector.
package coins

import (
	"bytes"
	"errors"
	"math"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/setavenger/utxo-audit/internal/serialisation"
	"github.com/setavenger/utxo-audit/internal/types"
)

var (
	ErrBadHeaderCode = errors.New("coins: implausible unspentness mask size")
	ErrBadHeight     = errors.New("coins: height exceeds 32 bits")
)

// maxMaskBytes bounds the decoded bitvector. A transaction cannot have
// anywhere near 8 * 16384 outputs, so anything larger is a corrupt
// header code, not a big record.
const maxMaskBytes = 1 << 14

// CoinsRecord is the transient decode result for one transaction.
// Outputs holds only the unspent slots, keyed by vout, per the sparse
// layout of the record itself.
type CoinsRecord struct {
	Version  uint64
	Coinbase bool
	Height   uint32
	Outputs  map[uint32]*types.TxOut
}

// Decode parses one serialised record. Layout: varint version, varint
// header code, unspentness bitvector, one compressed txout per set
// bit, varint height.
//
// The header code packs: bit 0 coinbase, bit 1 vout[0] unspent, bit 2
// vout[1] unspent, higher bits the count of non-zero bitvector bytes.
// When bits 1 and 2 are both clear the count is stored minus one,
// since at least one output must be unspent.
func Decode(raw []byte) (*CoinsRecord, error) {
	r := bytes.NewReader(raw)

	version, err := serialisation.ReadVarint(r)
	if err != nil {
		return nil, err
	}

	code, err := serialisation.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	coinbase := code&1 == 1
	vout0Unspent := code&2 != 0
	vout1Unspent := code&4 != 0
	maskBytes := code >> 3
	if !vout0Unspent && !vout1Unspent {
		maskBytes++
	}
	if maskBytes > maxMaskBytes {
		return nil, ErrBadHeaderCode
	}

	unspent := []bool{vout0Unspent, vout1Unspent}
	if maskBytes > 0 {
		mask, err := readUnspentnessMask(r, maskBytes)
		if err != nil {
			return nil, err
		}
		unspent = append(unspent, mask...)
	}

	record := &CoinsRecord{
		Version:  version,
		Coinbase: coinbase,
		Outputs:  make(map[uint32]*types.TxOut),
	}

	for vout, isUnspent := range unspent {
		if !isUnspent {
			continue
		}
		out, err := serialisation.DecodeTxOut(r)
		if err != nil {
			return nil, err
		}
		record.Outputs[uint32(vout)] = &out
	}

	height, err := serialisation.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if height > math.MaxUint32 {
		return nil, ErrBadHeight
	}
	record.Height = uint32(height)

	return record, nil
}

// readUnspentnessMask reads bitvector bytes until the given number of
// non-zero bytes has been seen. All-zero bytes do not count towards
// the total; trailing clear bits are dropped.
func readUnspentnessMask(r *bytes.Reader, nonZeroBytes uint64) ([]bool, error) {
	var mask []bool
	remaining := nonZeroBytes

	for remaining > 0 {
		b, err := r.ReadByte()
		if err != nil {
			return nil, serialisation.ErrTruncated
		}
		for bit := 0; bit < 8; bit++ {
			mask = append(mask, b&(1<<bit) != 0)
		}
		if b != 0 {
			remaining--
		}
	}

	last := -1
	for i, set := range mask {
		if set {
			last = i
		}
	}
	return mask[:last+1], nil
}

// Utxos expands the record into one Utxo per unspent slot, ordered by
// vout.
func (c *CoinsRecord) Utxos(txid chainhash.Hash) []types.Utxo {
	vouts := make([]uint32, 0, len(c.Outputs))
	for vout := range c.Outputs {
		vouts = append(vouts, vout)
	}
	sort.Slice(vouts, func(i, j int) bool { return vouts[i] < vouts[j] })

	utxos := make([]types.Utxo, 0, len(vouts))
	for _, vout := range vouts {
		out := c.Outputs[vout]
		utxos = append(utxos, types.Utxo{
			OutPoint: types.OutPoint{Txid: txid, Vout: vout},
			TxOut:    *out,
			Height:   c.Height,
			Coinbase: c.Coinbase,
		})
	}
	return utxos
}
