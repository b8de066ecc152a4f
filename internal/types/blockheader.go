package types

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// StandardHeaderLen is the size of a plain block header. AuxPow
// headers of merge mined chains are longer.
const StandardHeaderLen = 80

// BlockHeader maps a block hash to its raw header bytes.
type BlockHeader struct {
	Hash chainhash.Hash
	Raw  []byte
}

// AppendCanonical appends: hash || raw length (LE) || raw.
func (h *BlockHeader) AppendCanonical(dst []byte) []byte {
	dst = append(dst, h.Hash[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(h.Raw)))
	dst = append(dst, h.Raw...)
	return dst
}

// BlockHeight maps a block height to the hash of the block at that
// height. In a consistent snapshot these are in 1:1 correspondence
// with the BlockHeader entries.
type BlockHeight struct {
	Height uint32
	Hash   chainhash.Hash
}

// AppendCanonical appends: height (LE) || hash.
func (h *BlockHeight) AppendCanonical(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.Height)
	dst = append(dst, h.Hash[:]...)
	return dst
}
