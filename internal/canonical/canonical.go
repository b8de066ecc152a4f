// Package canonical turns a decoded RawState into a deterministic
// StateSnapshot: every dataset sorted into its canonical order and
// hashed over a fixed serialisation, so two snapshots of the same
// logical state always produce identical digests regardless of how
// the source stored the data.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"

	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/types"
)

// Build sorts and hashes raw into a StateSnapshot. raw is not modified.
func Build(raw *types.RawState) (*types.StateSnapshot, error) {
	snap := &types.StateSnapshot{
		Source:       raw.Source,
		Meta:         raw.Meta,
		Utxos:        append([]types.Utxo(nil), raw.Utxos...),
		AddressUtxos: append([]types.AddressUtxo(nil), raw.AddressUtxos...),
		Balances:     append([]types.AddressBalance(nil), raw.Balances...),
		Headers:      append([]types.BlockHeader(nil), raw.Headers...),
		Heights:      append([]types.BlockHeight(nil), raw.Heights...),
	}

	sortUtxos(snap.Utxos)
	sortAddressUtxos(snap.AddressUtxos)
	sortBalances(snap.Balances)
	sortHeights(snap.Heights)
	sortHeaders(snap.Headers, snap.Heights)

	// The five dataset digests are independent, hash them in parallel.
	var g errgroup.Group
	g.Go(func() error {
		snap.Digests.UtxoSet = digestUtxos(snap.Utxos)
		return nil
	})
	g.Go(func() error {
		snap.Digests.AddressUtxos = digestAddressUtxos(snap.AddressUtxos)
		return nil
	})
	g.Go(func() error {
		snap.Digests.AddressBalances = digestBalances(snap.Balances)
		return nil
	})
	g.Go(func() error {
		snap.Digests.BlockHeaders = digestHeaders(snap.Headers)
		return nil
	})
	g.Go(func() error {
		snap.Digests.BlockHeights = digestHeights(snap.Heights)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h := sha256.New()
	h.Write(snap.Digests.UtxoSet[:])
	h.Write(snap.Digests.AddressUtxos[:])
	h.Write(snap.Digests.AddressBalances[:])
	h.Write(snap.Digests.BlockHeaders[:])
	h.Write(snap.Digests.BlockHeights[:])
	copy(snap.Digests.Combined[:], h.Sum(nil))

	logging.L.Debug().
		Str("combined", snap.Digests.Combined.String()).
		Msg("canonicalized snapshot")

	return snap, nil
}

// Sorts compare every field so the order stays total even on
// inconsistent inputs with duplicate keys.

func sortUtxos(utxos []types.Utxo) {
	sort.Slice(utxos, func(i, j int) bool {
		a, b := &utxos[i], &utxos[j]
		if c := a.OutPoint.Compare(b.OutPoint); c != 0 {
			return c < 0
		}
		if a.TxOut.Value != b.TxOut.Value {
			return a.TxOut.Value < b.TxOut.Value
		}
		if c := bytes.Compare(a.TxOut.PkScript, b.TxOut.PkScript); c != 0 {
			return c < 0
		}
		return a.Height < b.Height
	})
}

func sortAddressUtxos(entries []types.AddressUtxo) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		if c := a.Compare(b); c != 0 {
			return c < 0
		}
		return a.Height < b.Height
	})
}

func sortBalances(balances []types.AddressBalance) {
	sort.Slice(balances, func(i, j int) bool {
		a, b := &balances[i], &balances[j]
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		return a.Balance < b.Balance
	})
}

func sortHeights(heights []types.BlockHeight) {
	sort.Slice(heights, func(i, j int) bool {
		a, b := &heights[i], &heights[j]
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
	})
}

// sortHeaders orders headers by the height of their block, taken from
// the heights dataset. Headers whose hash has no height entry sort
// after all paired ones, by hash, so the order stays total.
func sortHeaders(headers []types.BlockHeader, heights []types.BlockHeight) {
	byHash := make(map[chainhash.Hash]uint32, len(heights))
	for _, h := range heights {
		byHash[h.Hash] = h.Height
	}
	sort.Slice(headers, func(i, j int) bool {
		a, b := &headers[i], &headers[j]
		ha, oka := byHash[a.Hash]
		hb, okb := byHash[b.Hash]
		switch {
		case oka && okb:
			if ha != hb {
				return ha < hb
			}
		case oka:
			return true
		case okb:
			return false
		}
		if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.Raw, b.Raw) < 0
	})
}

func digestUtxos(utxos []types.Utxo) types.Digest {
	h := sha256.New()
	var buf []byte
	for i := range utxos {
		buf = utxos[i].AppendCanonical(buf[:0])
		h.Write(buf)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func digestAddressUtxos(entries []types.AddressUtxo) types.Digest {
	h := sha256.New()
	var buf []byte
	for i := range entries {
		buf = entries[i].AppendCanonical(buf[:0])
		h.Write(buf)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func digestBalances(balances []types.AddressBalance) types.Digest {
	h := sha256.New()
	var buf []byte
	for i := range balances {
		buf = balances[i].AppendCanonical(buf[:0])
		h.Write(buf)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func digestHeaders(headers []types.BlockHeader) types.Digest {
	h := sha256.New()
	var buf []byte
	for i := range headers {
		buf = headers[i].AppendCanonical(buf[:0])
		h.Write(buf)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}

func digestHeights(heights []types.BlockHeight) types.Digest {
	h := sha256.New()
	var buf []byte
	for i := range heights {
		buf = heights[i].AppendCanonical(buf[:0])
		h.Write(buf)
	}
	var d types.Digest
	copy(d[:], h.Sum(nil))
	return d
}
