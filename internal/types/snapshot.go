package types

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Digest is a SHA-256 digest over one canonically serialised dataset.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, err
	}
	if len(raw) != len(d) {
		return d, errors.New("digest must be 32 bytes of hex")
	}
	copy(d[:], raw)
	return d, nil
}

type SourceKind int

const (
	SourceStableMemory SourceKind = iota
	SourceChainstate
)

func (s SourceKind) String() string {
	switch s {
	case SourceStableMemory:
		return "stable-memory"
	case SourceChainstate:
		return "chainstate"
	default:
		return "unknown"
	}
}

// SnapshotMeta is the global metadata carried in the upgrade blob of a
// stable memory snapshot. Chainstate databases have none.
type SnapshotMeta struct {
	Network   string
	TipHeight uint32
	TipHash   chainhash.Hash
}

// RawState holds the decoded but not yet canonicalized datasets of one
// source. The decode layers only append; ordering carries no meaning.
type RawState struct {
	Source SourceKind
	Meta   SnapshotMeta

	Utxos        []Utxo
	AddressUtxos []AddressUtxo
	Balances     []AddressBalance
	Headers      []BlockHeader
	Heights      []BlockHeight
}

// Digests are the five per-dataset digests plus the combined digest,
// always in the fixed order utxo set, address utxos, address balances,
// block headers, block heights.
type Digests struct {
	UtxoSet         Digest
	AddressUtxos    Digest
	AddressBalances Digest
	BlockHeaders    Digest
	BlockHeights    Digest
	Combined        Digest
}

// StateSnapshot is the canonicalized result of one run. Read-only
// after construction by the canonical package.
type StateSnapshot struct {
	Source SourceKind
	Meta   SnapshotMeta

	Utxos        []Utxo
	AddressUtxos []AddressUtxo
	Balances     []AddressBalance
	Headers      []BlockHeader
	Heights      []BlockHeight

	Digests Digests
}
