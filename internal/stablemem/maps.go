package stablemem

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/setavenger/utxo-audit/internal/serialisation"
	"github.com/setavenger/utxo-audit/internal/types"
)

// Every map region starts with its entry count as uint64 LE, followed
// by the entries in key order. Keys that carry a block height or a
// vout inside the key encode them big endian so the byte order of the
// region matches numeric order; values stay little endian.

// readEntryCount reads the declared count and bounds it by the bytes
// actually present, with minEntrySize the smallest encodable entry.
// Counts the region cannot hold are corrupt and must not drive the
// slice pre-allocation.
func readEntryCount(r *bytes.Reader, minEntrySize uint64) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, serialisation.ErrTruncated
	}
	count := binary.LittleEndian.Uint64(buf[:])
	if count > uint64(r.Len())/minEntrySize {
		return 0, serialisation.ErrTruncated
	}
	return count, nil
}

func readHash(r *bytes.Reader) (chainhash.Hash, error) {
	var h chainhash.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return h, serialisation.ErrTruncated
	}
	return h, nil
}

func readUint32(r *bytes.Reader, order binary.ByteOrder) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, serialisation.ErrTruncated
	}
	return order.Uint32(buf[:]), nil
}

// decodeUtxoRegion decodes region 2 or 3. Both share the layout
// outpoint key, compressed output plus varint height value; they
// differ only in the script class they are allowed to hold.
func decodeUtxoRegion(raw []byte, class types.ScriptClass) ([]types.Utxo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	// 32 byte txid, 4 byte vout, 3 bytes for the shortest output and
	// height encoding.
	count, err := readEntryCount(r, 39)
	if err != nil {
		return nil, err
	}

	utxos := make([]types.Utxo, 0, count)
	for i := uint64(0); i < count; i++ {
		var utxo types.Utxo
		if utxo.OutPoint.Txid, err = readHash(r); err != nil {
			return nil, err
		}
		if utxo.OutPoint.Vout, err = readUint32(r, binary.BigEndian); err != nil {
			return nil, err
		}
		if utxo.TxOut, err = serialisation.DecodeTxOut(r); err != nil {
			return nil, err
		}
		height, err := serialisation.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		if height > math.MaxUint32 {
			return nil, fmt.Errorf("stablemem: height %d exceeds 32 bits at entry %d", height, i)
		}
		utxo.Height = uint32(height)

		if got := utxo.ScriptClass(); got != class {
			return nil, fmt.Errorf("stablemem: %s utxo region holds a %d byte (%s) script at entry %d",
				class, len(utxo.TxOut.PkScript), got, i)
		}
		utxos = append(utxos, utxo)
	}
	return utxos, trailing(r)
}

// decodeAddressIndex decodes region 1, the address to UTXO index.
func decodeAddressIndex(raw []byte) ([]types.AddressUtxo, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	// Length byte for an empty address plus txid, vout and height.
	count, err := readEntryCount(r, 41)
	if err != nil {
		return nil, err
	}

	entries := make([]types.AddressUtxo, 0, count)
	for i := uint64(0); i < count; i++ {
		var entry types.AddressUtxo
		if entry.Address, err = readAddress(r); err != nil {
			return nil, err
		}
		if entry.OutPoint.Txid, err = readHash(r); err != nil {
			return nil, err
		}
		if entry.OutPoint.Vout, err = readUint32(r, binary.BigEndian); err != nil {
			return nil, err
		}
		if entry.Height, err = readUint32(r, binary.LittleEndian); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, trailing(r)
}

// decodeBalances decodes region 4, address to aggregate balance.
func decodeBalances(raw []byte) ([]types.AddressBalance, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	count, err := readEntryCount(r, 9)
	if err != nil {
		return nil, err
	}

	balances := make([]types.AddressBalance, 0, count)
	for i := uint64(0); i < count; i++ {
		var bal types.AddressBalance
		if bal.Address, err = readAddress(r); err != nil {
			return nil, err
		}
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, serialisation.ErrTruncated
		}
		bal.Balance = binary.LittleEndian.Uint64(buf[:])
		balances = append(balances, bal)
	}
	return balances, trailing(r)
}

// decodeHeaders decodes region 5, block hash to raw header bytes. Raw
// headers are variable length because merge mined chains append the
// AuxPow proof.
func decodeHeaders(raw []byte) ([]types.BlockHeader, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	count, err := readEntryCount(r, 33)
	if err != nil {
		return nil, err
	}

	headers := make([]types.BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		var hdr types.BlockHeader
		if hdr.Hash, err = readHash(r); err != nil {
			return nil, err
		}
		rawLen, err := serialisation.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		if rawLen > uint64(r.Len()) {
			return nil, serialisation.ErrTruncated
		}
		hdr.Raw = make([]byte, rawLen)
		if _, err := io.ReadFull(r, hdr.Raw); err != nil {
			return nil, serialisation.ErrTruncated
		}
		headers = append(headers, hdr)
	}
	return headers, trailing(r)
}

// decodeHeights decodes region 6, block height to block hash.
func decodeHeights(raw []byte) ([]types.BlockHeight, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	r := bytes.NewReader(raw)
	count, err := readEntryCount(r, 36)
	if err != nil {
		return nil, err
	}

	heights := make([]types.BlockHeight, 0, count)
	for i := uint64(0); i < count; i++ {
		var bh types.BlockHeight
		if bh.Height, err = readUint32(r, binary.BigEndian); err != nil {
			return nil, err
		}
		if bh.Hash, err = readHash(r); err != nil {
			return nil, err
		}
		heights = append(heights, bh)
	}
	return heights, trailing(r)
}

func readAddress(r *bytes.Reader) (string, error) {
	addrLen, err := r.ReadByte()
	if err != nil {
		return "", serialisation.ErrTruncated
	}
	buf := make([]byte, addrLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", serialisation.ErrTruncated
	}
	return string(buf), nil
}

// trailing rejects regions with bytes left over after the declared
// entry count, which points at a corrupt region table.
func trailing(r *bytes.Reader) error {
	if r.Len() != 0 {
		return fmt.Errorf("stablemem: %d trailing bytes after last entry", r.Len())
	}
	return nil
}
