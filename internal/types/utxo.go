package types

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Script size classes. The stable memory layout keeps small and medium
// scripts in their own regions and pushes everything larger into the
// upgrade blob.
const (
	SmallScriptMaxLen  = 25
	MediumScriptMaxLen = 201
)

type ScriptClass int

const (
	ScriptSmall ScriptClass = iota
	ScriptMedium
	ScriptLarge
)

func (c ScriptClass) String() string {
	switch c {
	case ScriptSmall:
		return "small"
	case ScriptMedium:
		return "medium"
	default:
		return "large"
	}
}

func ClassifyScriptLen(n int) ScriptClass {
	switch {
	case n <= SmallScriptMaxLen:
		return ScriptSmall
	case n <= MediumScriptMaxLen:
		return ScriptMedium
	default:
		return ScriptLarge
	}
}

// OutPoint identifies a transaction output. Ordering is byte-wise on
// (txid, vout).
type OutPoint struct {
	Txid chainhash.Hash
	Vout uint32
}

func (o OutPoint) Compare(other OutPoint) int {
	if c := bytes.Compare(o.Txid[:], other.Txid[:]); c != 0 {
		return c
	}
	switch {
	case o.Vout < other.Vout:
		return -1
	case o.Vout > other.Vout:
		return 1
	default:
		return 0
	}
}

type TxOut struct {
	Value    uint64
	PkScript []byte
}

// Utxo is one unspent output plus the height of the block that created
// it. Coinbase is carried for the export layer only; it is not part of
// the canonical serialisation.
type Utxo struct {
	OutPoint OutPoint
	TxOut    TxOut
	Height   uint32
	Coinbase bool
}

func (u *Utxo) ScriptClass() ScriptClass {
	return ClassifyScriptLen(len(u.TxOut.PkScript))
}

// AppendCanonical appends the fixed hashing serialisation:
// txid || vout (LE) || value (LE) || script length (LE) || script || height (LE).
func (u *Utxo) AppendCanonical(dst []byte) []byte {
	dst = append(dst, u.OutPoint.Txid[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, u.OutPoint.Vout)
	dst = binary.LittleEndian.AppendUint64(dst, u.TxOut.Value)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(u.TxOut.PkScript)))
	dst = append(dst, u.TxOut.PkScript...)
	dst = binary.LittleEndian.AppendUint32(dst, u.Height)
	return dst
}
