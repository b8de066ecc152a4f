package serialisation

import (
	"io"

	"github.com/setavenger/utxo-audit/internal/types"
)

// Reader is what the txout codec needs from its input. bytes.Reader
// satisfies it.
type Reader interface {
	io.Reader
	io.ByteReader
}

// DecodeTxOut reads one compressed output: varint compressed amount,
// varint script tag, script payload.
func DecodeTxOut(r Reader) (types.TxOut, error) {
	code, err := ReadVarint(r)
	if err != nil {
		return types.TxOut{}, err
	}
	value, err := DecompressAmount(code)
	if err != nil {
		return types.TxOut{}, err
	}

	nsize, err := ReadVarint(r)
	if err != nil {
		return types.TxOut{}, err
	}
	script, err := DecompressScript(nsize, r)
	if err != nil {
		return types.TxOut{}, err
	}

	return types.TxOut{Value: value, PkScript: script}, nil
}

// AppendTxOut appends the compressed form of out to dst, the exact
// inverse of DecodeTxOut.
func AppendTxOut(dst []byte, out types.TxOut) []byte {
	dst = AppendVarint(dst, CompressAmount(out.Value))
	nsize, payload := CompressScript(out.PkScript)
	dst = AppendVarint(dst, nsize)
	return append(dst, payload...)
}

// ScriptNsize reports the compression tag a script serialises under,
// without building the payload. The export layer surfaces it as the
// nsize column.
func ScriptNsize(script []byte) uint64 {
	nsize, _ := CompressScript(script)
	return nsize
}
