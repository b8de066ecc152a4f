package stablemem

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/fxamacker/cbor/v2"

	"github.com/setavenger/utxo-audit/internal/types"
)

// upgradeBlob is the CBOR payload of region 0. It carries the snapshot
// metadata plus the UTXOs whose scripts are too long for the fixed
// width map regions.
type upgradeBlob struct {
	Network    string      `cbor:"network"`
	TipHeight  uint32      `cbor:"tip_height"`
	TipHash    []byte      `cbor:"tip_hash"`
	LargeUtxos []largeUtxo `cbor:"large_utxos"`
}

type largeUtxo struct {
	Txid   []byte `cbor:"txid"`
	Vout   uint32 `cbor:"vout"`
	Value  uint64 `cbor:"value"`
	Script []byte `cbor:"script"`
	Height uint32 `cbor:"height"`
}

func decodeUpgrade(raw []byte) (types.SnapshotMeta, []types.Utxo, error) {
	var blob upgradeBlob
	if err := cbor.Unmarshal(raw, &blob); err != nil {
		return types.SnapshotMeta{}, nil, fmt.Errorf("%w: %v", ErrUpgradeDecode, err)
	}
	if len(blob.TipHash) != chainhash.HashSize {
		return types.SnapshotMeta{}, nil, fmt.Errorf("%w: tip hash is %d bytes", ErrUpgradeDecode, len(blob.TipHash))
	}

	meta := types.SnapshotMeta{
		Network:   blob.Network,
		TipHeight: blob.TipHeight,
	}
	copy(meta.TipHash[:], blob.TipHash)

	utxos := make([]types.Utxo, 0, len(blob.LargeUtxos))
	for i, lu := range blob.LargeUtxos {
		if len(lu.Txid) != chainhash.HashSize {
			return types.SnapshotMeta{}, nil, fmt.Errorf("%w: large utxo %d txid is %d bytes", ErrUpgradeDecode, i, len(lu.Txid))
		}
		if types.ClassifyScriptLen(len(lu.Script)) != types.ScriptLarge {
			return types.SnapshotMeta{}, nil, fmt.Errorf("%w: large utxo %d script is %d bytes, belongs in a map region", ErrUpgradeDecode, i, len(lu.Script))
		}
		utxo := types.Utxo{
			OutPoint: types.OutPoint{Vout: lu.Vout},
			TxOut:    types.TxOut{Value: lu.Value, PkScript: lu.Script},
			Height:   lu.Height,
		}
		copy(utxo.OutPoint.Txid[:], lu.Txid)
		utxos = append(utxos, utxo)
	}

	return meta, utxos, nil
}
