package stablemem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/fxamacker/cbor/v2"

	"github.com/setavenger/utxo-audit/internal/serialisation"
	"github.com/setavenger/utxo-audit/internal/types"
)

// The encoders below exist only to build snapshot fixtures; the
// production path is decode only.

func encodeUtxoRegion(t *testing.T, utxos []types.Utxo) []byte {
	t.Helper()
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(utxos)))
	for _, u := range utxos {
		buf = append(buf, u.OutPoint.Txid[:]...)
		buf = binary.BigEndian.AppendUint32(buf, u.OutPoint.Vout)
		buf = serialisation.AppendTxOut(buf, u.TxOut)
		buf = serialisation.AppendVarint(buf, uint64(u.Height))
	}
	return buf
}

func encodeAddressIndex(t *testing.T, entries []types.AddressUtxo) []byte {
	t.Helper()
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(entries)))
	for _, e := range entries {
		buf = append(buf, byte(len(e.Address)))
		buf = append(buf, e.Address...)
		buf = append(buf, e.OutPoint.Txid[:]...)
		buf = binary.BigEndian.AppendUint32(buf, e.OutPoint.Vout)
		buf = binary.LittleEndian.AppendUint32(buf, e.Height)
	}
	return buf
}

func encodeBalances(t *testing.T, balances []types.AddressBalance) []byte {
	t.Helper()
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(balances)))
	for _, b := range balances {
		buf = append(buf, byte(len(b.Address)))
		buf = append(buf, b.Address...)
		buf = binary.LittleEndian.AppendUint64(buf, b.Balance)
	}
	return buf
}

func encodeHeaders(t *testing.T, headers []types.BlockHeader) []byte {
	t.Helper()
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(headers)))
	for _, h := range headers {
		buf = append(buf, h.Hash[:]...)
		buf = serialisation.AppendVarint(buf, uint64(len(h.Raw)))
		buf = append(buf, h.Raw...)
	}
	return buf
}

func encodeHeights(t *testing.T, heights []types.BlockHeight) []byte {
	t.Helper()
	buf := binary.LittleEndian.AppendUint64(nil, uint64(len(heights)))
	for _, h := range heights {
		buf = binary.BigEndian.AppendUint32(buf, h.Height)
		buf = append(buf, h.Hash[:]...)
	}
	return buf
}

func encodeUpgrade(t *testing.T, meta types.SnapshotMeta, large []types.Utxo) []byte {
	t.Helper()
	blob := upgradeBlob{
		Network:   meta.Network,
		TipHeight: meta.TipHeight,
		TipHash:   meta.TipHash[:],
	}
	for _, u := range large {
		blob.LargeUtxos = append(blob.LargeUtxos, largeUtxo{
			Txid:   u.OutPoint.Txid[:],
			Vout:   u.OutPoint.Vout,
			Value:  u.TxOut.Value,
			Script: u.TxOut.PkScript,
			Height: u.Height,
		})
	}
	raw, err := cbor.Marshal(blob)
	if err != nil {
		t.Fatalf("marshal upgrade blob: %v", err)
	}
	return raw
}

// buildSnapshot assembles a snapshot image: the region table on page 0
// and every region on its own page boundary.
func buildSnapshot(t *testing.T, regions map[uint8][]byte) []byte {
	t.Helper()

	header := append([]byte(nil), snapshotMagic[:]...)
	header = binary.LittleEndian.AppendUint16(header, 1)
	header = binary.LittleEndian.AppendUint16(header, uint16(len(regions)))

	image := make([]byte, PageSize)
	for id := uint8(0); id <= RegionHeights; id++ {
		raw, ok := regions[id]
		if !ok {
			continue
		}
		firstPage := uint32(len(image) / PageSize)
		header = append(header, id)
		header = binary.LittleEndian.AppendUint32(header, firstPage)
		header = binary.LittleEndian.AppendUint64(header, uint64(len(raw)))

		image = append(image, raw...)
		if pad := len(image) % PageSize; pad != 0 {
			image = append(image, make([]byte, PageSize-pad)...)
		}
	}
	copy(image, header)
	return image
}

func hashFromByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestDecodeFullSnapshot(t *testing.T) {
	meta := types.SnapshotMeta{Network: "mainnet", TipHeight: 5_000_000, TipHash: hashFromByte(0xaa)}

	p2pkh := make([]byte, 25)
	p2pkh[0], p2pkh[1], p2pkh[23], p2pkh[24] = 0x76, 0xa9, 0x88, 0xac
	p2pkh[2] = 20

	small := types.Utxo{
		OutPoint: types.OutPoint{Txid: hashFromByte(0x01), Vout: 0},
		TxOut:    types.TxOut{Value: 50_0000_0000, PkScript: p2pkh},
		Height:   100,
	}
	medium := types.Utxo{
		OutPoint: types.OutPoint{Txid: hashFromByte(0x02), Vout: 3},
		TxOut:    types.TxOut{Value: 12345, PkScript: bytes.Repeat([]byte{0x51}, 100)},
		Height:   200,
	}
	large := types.Utxo{
		OutPoint: types.OutPoint{Txid: hashFromByte(0x03), Vout: 7},
		TxOut:    types.TxOut{Value: 1, PkScript: bytes.Repeat([]byte{0x6a}, 300)},
		Height:   300,
	}

	addrEntry := types.AddressUtxo{Address: "DTestAddr1", OutPoint: small.OutPoint, Height: small.Height}
	balance := types.AddressBalance{Address: "DTestAddr1", Balance: small.TxOut.Value}
	header := types.BlockHeader{Hash: hashFromByte(0xbb), Raw: bytes.Repeat([]byte{0x11}, types.StandardHeaderLen)}
	auxHeader := types.BlockHeader{Hash: hashFromByte(0xcc), Raw: bytes.Repeat([]byte{0x22}, 120)}
	height := types.BlockHeight{Height: 100, Hash: hashFromByte(0xbb)}

	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade:      encodeUpgrade(t, meta, []types.Utxo{large}),
		RegionAddressIndex: encodeAddressIndex(t, []types.AddressUtxo{addrEntry}),
		RegionSmallUtxos:   encodeUtxoRegion(t, []types.Utxo{small}),
		RegionMediumUtxos:  encodeUtxoRegion(t, []types.Utxo{medium}),
		RegionBalances:     encodeBalances(t, []types.AddressBalance{balance}),
		RegionHeaders:      encodeHeaders(t, []types.BlockHeader{header, auxHeader}),
		RegionHeights:      encodeHeights(t, []types.BlockHeight{height}),
	})

	state, err := Decode(image)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if state.Source != types.SourceStableMemory {
		t.Errorf("source = %v, want stable-memory", state.Source)
	}
	if state.Meta != meta {
		t.Errorf("meta = %+v, want %+v", state.Meta, meta)
	}
	if len(state.Utxos) != 3 {
		t.Fatalf("got %d utxos, want 3", len(state.Utxos))
	}
	for _, want := range []types.Utxo{small, medium, large} {
		found := false
		for _, got := range state.Utxos {
			if got.OutPoint == want.OutPoint {
				found = true
				if got.TxOut.Value != want.TxOut.Value || !bytes.Equal(got.TxOut.PkScript, want.TxOut.PkScript) || got.Height != want.Height {
					t.Errorf("utxo %v decoded as %+v, want %+v", want.OutPoint, got, want)
				}
			}
		}
		if !found {
			t.Errorf("utxo %v missing from decoded state", want.OutPoint)
		}
	}
	if len(state.AddressUtxos) != 1 || state.AddressUtxos[0] != addrEntry {
		t.Errorf("address index = %+v, want [%+v]", state.AddressUtxos, addrEntry)
	}
	if len(state.Balances) != 1 || state.Balances[0] != balance {
		t.Errorf("balances = %+v, want [%+v]", state.Balances, balance)
	}
	if len(state.Headers) != 2 {
		t.Fatalf("got %d headers, want 2", len(state.Headers))
	}
	if !bytes.Equal(state.Headers[1].Raw, auxHeader.Raw) {
		t.Errorf("aux header raw mismatch")
	}
	if len(state.Heights) != 1 || state.Heights[0] != height {
		t.Errorf("heights = %+v, want [%+v]", state.Heights, height)
	}
}

func TestDecodeUpgradeOnly(t *testing.T) {
	meta := types.SnapshotMeta{Network: "testnet", TipHeight: 0, TipHash: hashFromByte(0x10)}
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade: encodeUpgrade(t, meta, nil),
	})

	state, err := Decode(image)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(state.Utxos) != 0 || len(state.AddressUtxos) != 0 || len(state.Balances) != 0 ||
		len(state.Headers) != 0 || len(state.Heights) != 0 {
		t.Errorf("expected empty datasets, got %+v", state)
	}
	if state.Meta != meta {
		t.Errorf("meta = %+v, want %+v", state.Meta, meta)
	}
}

func TestReadFromFile(t *testing.T) {
	meta := types.SnapshotMeta{Network: "regtest", TipHeight: 9, TipHash: hashFromByte(0x42)}
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade: encodeUpgrade(t, meta, nil),
		RegionHeights: encodeHeights(t, []types.BlockHeight{{Height: 9, Hash: hashFromByte(0x42)}}),
	})

	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := os.WriteFile(path, image, 0600); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	state, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if state.Meta != meta || len(state.Heights) != 1 {
		t.Errorf("state = %+v, want meta %+v and one height", state, meta)
	}

	if _, err := Read(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecodeMissingUpgrade(t *testing.T) {
	image := buildSnapshot(t, map[uint8][]byte{
		RegionHeights: encodeHeights(t, nil),
	})
	if _, err := Decode(image); !errors.Is(err, ErrMissingUpgrade) {
		t.Errorf("err = %v, want ErrMissingUpgrade", err)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade: encodeUpgrade(t, types.SnapshotMeta{TipHash: hashFromByte(1)}, nil),
	})
	image[0] = 'X'
	if _, err := Decode(image); !errors.Is(err, ErrBadMagic) {
		t.Errorf("err = %v, want ErrBadMagic", err)
	}
}

func TestDecodeUnknownRegion(t *testing.T) {
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade: encodeUpgrade(t, types.SnapshotMeta{TipHash: hashFromByte(1)}, nil),
	})
	// Overwrite the region id of the single table entry.
	image[tableHeaderLen] = 42
	if _, err := Decode(image); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("err = %v, want ErrUnknownRegion", err)
	}
}

func TestDecodeRegionPastEnd(t *testing.T) {
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade: encodeUpgrade(t, types.SnapshotMeta{TipHash: hashFromByte(1)}, nil),
	})
	// Inflate the declared byte length of region 0 past the file end.
	binary.LittleEndian.PutUint64(image[tableHeaderLen+5:], uint64(len(image)))
	if _, err := Decode(image); !errors.Is(err, ErrTruncatedRegion) {
		t.Errorf("err = %v, want ErrTruncatedRegion", err)
	}
}

func TestDecodeScriptClassMismatch(t *testing.T) {
	// A 100 byte script placed in the small region must be rejected.
	misfiled := types.Utxo{
		OutPoint: types.OutPoint{Txid: hashFromByte(0x05)},
		TxOut:    types.TxOut{Value: 10, PkScript: bytes.Repeat([]byte{0x51}, 100)},
		Height:   1,
	}
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade:    encodeUpgrade(t, types.SnapshotMeta{TipHash: hashFromByte(1)}, nil),
		RegionSmallUtxos: encodeUtxoRegion(t, []types.Utxo{misfiled}),
	})
	if _, err := Decode(image); err == nil {
		t.Error("expected script class error, got nil")
	}
}

func TestDecodeOversizedEntryCount(t *testing.T) {
	// A count the region bytes cannot possibly hold must fail cleanly
	// instead of driving a huge allocation.
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade:    encodeUpgrade(t, types.SnapshotMeta{TipHash: hashFromByte(1)}, nil),
		RegionSmallUtxos: binary.LittleEndian.AppendUint64(nil, 1<<61),
	})
	if _, err := Decode(image); !errors.Is(err, serialisation.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestDecodeUpgradeGarbage(t *testing.T) {
	image := buildSnapshot(t, map[uint8][]byte{
		RegionUpgrade: {0xff, 0x00, 0x12},
	})
	if _, err := Decode(image); !errors.Is(err, ErrUpgradeDecode) {
		t.Errorf("err = %v, want ErrUpgradeDecode", err)
	}
}
