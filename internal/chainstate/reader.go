// Package chainstate reads a Bitcoin Core style chainstate LevelDB and
// extracts its full UTXO set. Both on-disk layouts are supported: the
// modern per-output records under prefix 'C' and the legacy
// per-transaction CCoins records under prefix 'c'. A database holds
// exactly one layout.
package chainstate

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/setavenger/utxo-audit/internal/coins"
	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/serialisation"
	"github.com/setavenger/utxo-audit/internal/types"
)

const (
	prefixCoinModern  = 0x43 // 'C', one record per unspent output
	prefixCoinsLegacy = 0x63 // 'c', one record per transaction
	prefixBestBlock   = 0x42 // 'B', hash of the best block
)

var (
	ErrMixedKeyLayout   = errors.New("chainstate: both modern and legacy coin keys present")
	ErrUnknownKeyPrefix = errors.New("chainstate: malformed coin key")
)

type layout int

const (
	layoutUnknown layout = iota
	layoutModern
	layoutLegacy
)

// Read opens the chainstate directory read-only and decodes every coin
// record into a RawState. Only the UTXO dataset is populated; the
// address and header datasets do not exist in a chainstate database.
func Read(path string) (*types.RawState, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		ReadOnly:       true,
		ErrorIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("chainstate: open %s: %w", path, err)
	}
	defer db.Close()

	mask, err := loadObfuscationKey(db)
	if err != nil {
		return nil, err
	}

	state := &types.RawState{Source: types.SourceChainstate}

	detected := layoutUnknown
	iter := db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()
		if len(key) == 0 {
			continue
		}

		var recordLayout layout
		switch key[0] {
		case prefixCoinModern:
			recordLayout = layoutModern
		case prefixCoinsLegacy:
			recordLayout = layoutLegacy
		case prefixBestBlock:
			if len(key) == 1 {
				value := append([]byte(nil), iter.Value()...)
				deobfuscate(value, mask)
				if len(value) == chainhash.HashSize {
					copy(state.Meta.TipHash[:], value)
				}
			}
			continue
		default:
			// Block index, flush markers and the obfuscation entry
			// itself are not coin data.
			continue
		}

		if detected == layoutUnknown {
			detected = recordLayout
		} else if detected != recordLayout {
			return nil, ErrMixedKeyLayout
		}

		value := append([]byte(nil), iter.Value()...)
		deobfuscate(value, mask)

		var utxos []types.Utxo
		switch recordLayout {
		case layoutModern:
			utxos, err = decodeModern(key, value)
		case layoutLegacy:
			utxos, err = decodeLegacy(key, value)
		}
		if err != nil {
			return nil, err
		}
		state.Utxos = append(state.Utxos, utxos...)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("chainstate: iterate: %w", err)
	}

	for i := range state.Utxos {
		if state.Utxos[i].Height > state.Meta.TipHeight {
			state.Meta.TipHeight = state.Utxos[i].Height
		}
	}

	logging.L.Info().
		Str("layout", map[layout]string{layoutModern: "modern", layoutLegacy: "legacy", layoutUnknown: "empty"}[detected]).
		Int("utxos", len(state.Utxos)).
		Msg("decoded chainstate database")

	return state, nil
}

// decodeModern handles one per-output record: key is prefix, txid and
// varint vout; value is varint(height<<1 | coinbase) followed by the
// compressed output.
func decodeModern(key, value []byte) ([]types.Utxo, error) {
	if len(key) < 1+chainhash.HashSize+1 {
		return nil, fmt.Errorf("%w: modern key of %d bytes", ErrUnknownKeyPrefix, len(key))
	}
	var utxo types.Utxo
	copy(utxo.OutPoint.Txid[:], key[1:1+chainhash.HashSize])

	keyRest := bytes.NewReader(key[1+chainhash.HashSize:])
	vout, err := serialisation.ReadVarint(keyRest)
	if err != nil || keyRest.Len() != 0 || vout > math.MaxUint32 {
		return nil, fmt.Errorf("%w: modern key vout", ErrUnknownKeyPrefix)
	}
	utxo.OutPoint.Vout = uint32(vout)

	r := bytes.NewReader(value)
	code, err := serialisation.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	if code>>1 > math.MaxUint32 {
		return nil, fmt.Errorf("chainstate: coin height %d exceeds 32 bits", code>>1)
	}
	utxo.Height = uint32(code >> 1)
	utxo.Coinbase = code&1 == 1

	if utxo.TxOut, err = serialisation.DecodeTxOut(r); err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("chainstate: %d trailing bytes in coin record", r.Len())
	}
	return []types.Utxo{utxo}, nil
}

// decodeLegacy handles one per-transaction CCoins record: key is
// prefix and txid, value is the serialised CCoins structure.
func decodeLegacy(key, value []byte) ([]types.Utxo, error) {
	if len(key) != 1+chainhash.HashSize {
		return nil, fmt.Errorf("%w: legacy key of %d bytes", ErrUnknownKeyPrefix, len(key))
	}
	var txid chainhash.Hash
	copy(txid[:], key[1:])

	record, err := coins.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("chainstate: coins record %s: %w", txid, err)
	}
	return record.Utxos(txid), nil
}
