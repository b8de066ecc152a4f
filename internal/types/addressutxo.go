package types

import (
	"encoding/binary"
	"strings"
)

// AddressUtxo is one entry of the address to UTXO index. In a fully
// consistent snapshot every entry references an existing Utxo; the
// validator checks this, construction does not.
type AddressUtxo struct {
	Address  string
	OutPoint OutPoint
	Height   uint32
}

func (a *AddressUtxo) Compare(other *AddressUtxo) int {
	if c := strings.Compare(a.Address, other.Address); c != 0 {
		return c
	}
	return a.OutPoint.Compare(other.OutPoint)
}

// AppendCanonical appends:
// address length (LE) || address || txid || vout (LE) || height (LE).
func (a *AddressUtxo) AppendCanonical(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(a.Address)))
	dst = append(dst, a.Address...)
	dst = append(dst, a.OutPoint.Txid[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, a.OutPoint.Vout)
	dst = binary.LittleEndian.AppendUint32(dst, a.Height)
	return dst
}

// AddressBalance is the aggregate balance of one address, independent
// of the individual UTXOs.
type AddressBalance struct {
	Address string
	Balance uint64
}

// AppendCanonical appends:
// address length (LE) || address || balance (16 byte LE).
// The balance field is 16 bytes wide so digests stay comparable with
// implementations that carry 128 bit balances.
func (b *AddressBalance) AppendCanonical(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b.Address)))
	dst = append(dst, b.Address...)
	dst = binary.LittleEndian.AppendUint64(dst, b.Balance)
	dst = binary.LittleEndian.AppendUint64(dst, 0)
	return dst
}
