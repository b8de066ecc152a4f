package validate

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/setavenger/utxo-audit/internal/canonical"
	"github.com/setavenger/utxo-audit/internal/types"
)

func testHash(b byte) chainhash.Hash {
	var h chainhash.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

// chainOfHeights builds a snapshot with a contiguous header chain
// covering [first, last].
func chainOfHeights(t *testing.T, first, last uint32) *types.StateSnapshot {
	t.Helper()
	state := &types.RawState{Source: types.SourceStableMemory}
	for h := first; h <= last; h++ {
		raw := make([]byte, types.StandardHeaderLen)
		raw[0] = byte(h)
		raw[1] = byte(h >> 8)
		raw[2] = byte(h >> 16)
		raw[79] = 0x01
		var hash chainhash.Hash
		hash[0], hash[1], hash[2], hash[31] = byte(h), byte(h>>8), byte(h>>16), 0x01
		state.Headers = append(state.Headers, types.BlockHeader{Hash: hash, Raw: raw})
		state.Heights = append(state.Heights, types.BlockHeight{Height: h, Hash: hash})
	}
	snap, err := canonical.Build(state)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return snap
}

func countKind(r Report, kind Kind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func TestCheckEmptySnapshotValid(t *testing.T) {
	snap, err := canonical.Build(&types.RawState{Source: types.SourceStableMemory})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report := Check(snap); !report.OK() {
		t.Errorf("empty snapshot reported findings: %v", report.Findings)
	}
}

func TestCheckContiguousChainValid(t *testing.T) {
	report := Check(chainOfHeights(t, 0, 2000))
	if !report.OK() {
		t.Errorf("contiguous chain reported findings: %v", report.Findings)
	}
}

func TestCheckUtxoAtGenesis(t *testing.T) {
	snap := chainOfHeights(t, 0, 10)
	snap.Utxos = []types.Utxo{
		{OutPoint: types.OutPoint{Txid: testHash(1)}, TxOut: types.TxOut{Value: 1, PkScript: []byte{0x51}}, Height: 0},
		{OutPoint: types.OutPoint{Txid: testHash(2)}, TxOut: types.TxOut{Value: 1, PkScript: []byte{0x51}}, Height: 5},
	}
	report := Check(snap)
	if got := countKind(report, UtxoAtGenesis); got != 1 {
		t.Errorf("got %d genesis findings, want 1: %v", got, report.Findings)
	}
}

func TestCheckUndersizedAndZeroHeader(t *testing.T) {
	snap := chainOfHeights(t, 0, 2)
	snap.Headers[1] = types.BlockHeader{Hash: snap.Headers[1].Hash, Raw: make([]byte, 40)}

	report := Check(snap)
	if countKind(report, UndersizedHeader) != 1 {
		t.Errorf("want one undersized-header finding, got %v", report.Findings)
	}
	// The truncated header is also all zero bytes.
	if countKind(report, ZeroHeader) != 1 {
		t.Errorf("want one zero-header finding, got %v", report.Findings)
	}
}

func TestCheckCountMismatch(t *testing.T) {
	snap := chainOfHeights(t, 0, 99)
	snap.Headers = snap.Headers[:99]

	report := Check(snap)
	if countKind(report, HeaderHeightCountMismatch) != 1 {
		t.Errorf("want count-mismatch finding, got %v", report.Findings)
	}
}

func TestCheckDuplicatesAndGaps(t *testing.T) {
	snap := chainOfHeights(t, 0, 9)
	snap.Heights = append(snap.Heights, types.BlockHeight{Height: 5, Hash: testHash(0xee)},
		types.BlockHeight{Height: 20, Hash: testHash(0xef)})
	snap.Headers = append(snap.Headers, snap.Headers[0])

	// Re-canonicalize so heights are sorted the way Check expects.
	raw := &types.RawState{
		Source:  snap.Source,
		Headers: snap.Headers,
		Heights: snap.Heights,
	}
	resorted, err := canonical.Build(raw)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	report := Check(resorted)
	if countKind(report, DuplicateHeight) != 1 {
		t.Errorf("want one duplicate-height finding, got %v", report.Findings)
	}
	if countKind(report, HeightGap) != 1 {
		t.Errorf("want one height-gap finding, got %v", report.Findings)
	}
	if countKind(report, DuplicateHeaderHash) != 1 {
		t.Errorf("want one duplicate-header-hash finding, got %v", report.Findings)
	}
}

func TestCheckOrphanedState(t *testing.T) {
	snap, err := canonical.Build(&types.RawState{
		Source:       types.SourceStableMemory,
		AddressUtxos: []types.AddressUtxo{{Address: "DAddr", Height: 3}},
		Balances:     []types.AddressBalance{{Address: "DAddr", Balance: 7}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	report := Check(snap)
	if countKind(report, OrphanedState) != 1 {
		t.Errorf("want orphaned-state finding, got %v", report.Findings)
	}

	// A chainstate source has no heights by nature, not by damage.
	snap.Source = types.SourceChainstate
	if report := Check(snap); countKind(report, OrphanedState) != 0 {
		t.Errorf("chainstate source flagged as orphaned: %v", report.Findings)
	}
}
