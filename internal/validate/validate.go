// Package validate runs structural consistency checks over a
// canonicalized snapshot. Problems are collected as findings, never
// returned as errors: a verification run always produces a complete
// report.
package validate

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/types"
)

type Kind int

const (
	UtxoAtGenesis Kind = iota
	UndersizedHeader
	ZeroHeader
	HeaderHeightCountMismatch
	DuplicateHeight
	DuplicateHeaderHash
	HeightGap
	OrphanedState
)

func (k Kind) String() string {
	switch k {
	case UtxoAtGenesis:
		return "utxo-at-genesis"
	case UndersizedHeader:
		return "undersized-header"
	case ZeroHeader:
		return "zero-header"
	case HeaderHeightCountMismatch:
		return "header-height-count-mismatch"
	case DuplicateHeight:
		return "duplicate-height"
	case DuplicateHeaderHash:
		return "duplicate-header-hash"
	case HeightGap:
		return "height-gap"
	case OrphanedState:
		return "orphaned-state"
	default:
		return "unknown"
	}
}

// Finding is one detected inconsistency. Key names the offending
// entry, empty for dataset-level findings.
type Finding struct {
	Kind Kind
	Key  string
}

func (f Finding) String() string {
	if f.Key == "" {
		return f.Kind.String()
	}
	return f.Kind.String() + ": " + f.Key
}

type Report struct {
	Findings []Finding
}

func (r *Report) OK() bool {
	return len(r.Findings) == 0
}

func (r *Report) add(kind Kind, key string) {
	r.Findings = append(r.Findings, Finding{Kind: kind, Key: key})
}

// Check runs every check over snap. An empty snapshot is valid.
func Check(snap *types.StateSnapshot) Report {
	var report Report

	checkUtxos(&report, snap)
	checkHeaders(&report, snap)
	checkHeights(&report, snap)
	checkOrphanedState(&report, snap)

	if report.OK() {
		logging.L.Info().Msg("snapshot passed all consistency checks")
	} else {
		logging.L.Warn().Int("findings", len(report.Findings)).Msg("snapshot has consistency findings")
	}
	return report
}

func checkUtxos(report *Report, snap *types.StateSnapshot) {
	for i := range snap.Utxos {
		u := &snap.Utxos[i]
		if u.Height == 0 {
			report.add(UtxoAtGenesis, fmt.Sprintf("%s:%d", u.OutPoint.Txid, u.OutPoint.Vout))
		}
	}
}

func checkHeaders(report *Report, snap *types.StateSnapshot) {
	var zeroHash chainhash.Hash

	seen := make(map[chainhash.Hash]struct{}, len(snap.Headers))
	for i := range snap.Headers {
		h := &snap.Headers[i]
		if len(h.Raw) < types.StandardHeaderLen {
			report.add(UndersizedHeader, fmt.Sprintf("%s (%d bytes)", h.Hash, len(h.Raw)))
		}
		if h.Hash == zeroHash || allZero(h.Raw) {
			report.add(ZeroHeader, h.Hash.String())
		}
		if _, dup := seen[h.Hash]; dup {
			report.add(DuplicateHeaderHash, h.Hash.String())
		}
		seen[h.Hash] = struct{}{}
	}

	if len(snap.Headers) != len(snap.Heights) {
		report.add(HeaderHeightCountMismatch,
			fmt.Sprintf("%d headers, %d heights", len(snap.Headers), len(snap.Heights)))
	}
}

func checkHeights(report *Report, snap *types.StateSnapshot) {
	if len(snap.Heights) == 0 {
		return
	}

	// A complete chain covers [0, max]. Heights arrive sorted
	// ascending from canonicalization, so duplicates and gaps are
	// visible between neighbours.
	if first := snap.Heights[0].Height; first != 0 {
		report.add(HeightGap, fmt.Sprintf("0..%d", first))
	}
	for i := 1; i < len(snap.Heights); i++ {
		prev, cur := snap.Heights[i-1].Height, snap.Heights[i].Height
		switch {
		case cur == prev:
			report.add(DuplicateHeight, fmt.Sprintf("%d", cur))
		case cur != prev+1:
			report.add(HeightGap, fmt.Sprintf("%d..%d", prev, cur))
		}
	}
}

// checkOrphanedState flags address data that cannot belong to any
// block because the snapshot carries no height set at all. Chainstate
// sources never have address data, so this only fires on broken
// stable memory snapshots.
func checkOrphanedState(report *Report, snap *types.StateSnapshot) {
	if len(snap.Heights) > 0 {
		return
	}
	if len(snap.AddressUtxos) > 0 || len(snap.Balances) > 0 {
		if snap.Source == types.SourceChainstate {
			return
		}
		report.add(OrphanedState,
			fmt.Sprintf("%d address utxos, %d balances, no heights", len(snap.AddressUtxos), len(snap.Balances)))
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return len(b) > 0
}
