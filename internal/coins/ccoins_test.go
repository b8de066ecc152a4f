package coins

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/setavenger/utxo-audit/internal/serialisation"
)

func mustDecode(t *testing.T, s string) *CoinsRecord {
	t.Helper()
	raw, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	record, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode(%s): %v", s, err)
	}
	return record
}

func TestDecodeSingleOutput(t *testing.T) {
	// One unspent P2PKH output of 60000000000 at vout 1, height
	// 203998, not a coinbase.
	record := mustDecode(t, "0104835800816115944e077fe7c803cfa57f29b36bf87c1d358bb85e")

	if record.Version != 1 {
		t.Errorf("version = %d, want 1", record.Version)
	}
	if record.Coinbase {
		t.Error("coinbase = true, want false")
	}
	if record.Height != 203998 {
		t.Errorf("height = %d, want 203998", record.Height)
	}
	if len(record.Outputs) != 1 {
		t.Fatalf("got %d outputs, want 1", len(record.Outputs))
	}
	out, ok := record.Outputs[1]
	if !ok {
		t.Fatalf("vout 1 missing, outputs: %v", record.Outputs)
	}
	if out.Value != 60_000_000_000 {
		t.Errorf("value = %d, want 60000000000", out.Value)
	}
	if len(out.PkScript) != 25 || out.PkScript[0] != 0x76 || out.PkScript[24] != 0xac {
		t.Errorf("script = %x, want a p2pkh template", out.PkScript)
	}
}

func TestDecodeSparseCoinbase(t *testing.T) {
	// Coinbase with two unspent outputs at vouts 4 and 16, height
	// 120891. Header code 0x09: coinbase, vouts 0 and 1 spent, two
	// non-zero bitvector bytes.
	record := mustDecode(t, "0109044086ef97d5790061b01caab50f1b8e9c50a5057eb43c2d9563a4eebbd123008c988f1a4a4de2161e0f50aac7f17e7f9555caa486af3b")

	if record.Version != 1 {
		t.Errorf("version = %d, want 1", record.Version)
	}
	if !record.Coinbase {
		t.Error("coinbase = false, want true")
	}
	if record.Height != 120891 {
		t.Errorf("height = %d, want 120891", record.Height)
	}
	if len(record.Outputs) != 2 {
		t.Fatalf("got %d outputs, want 2", len(record.Outputs))
	}
	for _, vout := range []uint32{4, 16} {
		if _, ok := record.Outputs[vout]; !ok {
			t.Errorf("vout %d missing, outputs: %v", vout, record.Outputs)
		}
	}
	if out := record.Outputs[4]; out != nil && out.Value != 234_925_952 {
		t.Errorf("vout 4 value = %d, want 234925952", out.Value)
	}
	if out := record.Outputs[16]; out != nil && out.Value != 110_397 {
		t.Errorf("vout 16 value = %d, want 110397", out.Value)
	}
}

func TestDecodeTruncated(t *testing.T) {
	raw, err := hex.DecodeString("0104835800816115944e077fe7c8")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(raw); !errors.Is(err, serialisation.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestDecodeOutOfRangeHeight(t *testing.T) {
	// The single-output record up to but excluding its height varint.
	raw, err := hex.DecodeString("0104835800816115944e077fe7c803cfa57f29b36bf87c1d35")
	if err != nil {
		t.Fatal(err)
	}
	raw = serialisation.AppendVarint(raw, uint64(1)<<32)
	if _, err := Decode(raw); !errors.Is(err, ErrBadHeight) {
		t.Errorf("err = %v, want ErrBadHeight", err)
	}
}

func TestDecodeEmpty(t *testing.T) {
	if _, err := Decode(nil); !errors.Is(err, serialisation.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestUtxosOrderedByVout(t *testing.T) {
	record := mustDecode(t, "0109044086ef97d5790061b01caab50f1b8e9c50a5057eb43c2d9563a4eebbd123008c988f1a4a4de2161e0f50aac7f17e7f9555caa486af3b")

	var txid chainhash.Hash
	txid[0] = 0xaa
	utxos := record.Utxos(txid)

	if len(utxos) != 2 {
		t.Fatalf("got %d utxos, want 2", len(utxos))
	}
	if utxos[0].OutPoint.Vout != 4 || utxos[1].OutPoint.Vout != 16 {
		t.Errorf("vouts = %d, %d, want 4, 16", utxos[0].OutPoint.Vout, utxos[1].OutPoint.Vout)
	}
	for _, u := range utxos {
		if u.OutPoint.Txid != txid {
			t.Errorf("txid not carried into outpoint")
		}
		if u.Height != 120891 || !u.Coinbase {
			t.Errorf("utxo %d: height %d coinbase %v", u.OutPoint.Vout, u.Height, u.Coinbase)
		}
	}
}
