package serialisation

import (
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	ErrBadScriptTag = errors.New("serialisation: invalid compressed script tag")
	ErrBadPubkey    = errors.New("serialisation: invalid public key encoding")
)

// Script compression tags. Values below numSpecialTags select a
// template, larger values carry the raw script length plus the offset.
const (
	tagP2PKH        = 0
	tagP2SH         = 1
	tagP2PKEven     = 2
	tagP2PKOdd      = 3
	tagP2PKUncEven  = 4
	tagP2PKUncOdd   = 5
	numSpecialTags  = 6
	maxRawScriptLen = 1 << 20
)

const (
	opDup         = 0x76
	opHash160     = 0xa9
	opEqual       = 0x87
	opEqualVerify = 0x88
	opChecksig    = 0xac
	opData20      = 0x14
	opData33      = 0x21
	opData65      = 0x41
)

// CompressScript maps a locking script to its compression tag and
// payload. Unrecognized scripts are stored verbatim under the tag
// len(script) + 6.
func CompressScript(script []byte) (uint64, []byte) {
	switch {
	case isP2PKH(script):
		return tagP2PKH, script[3:23]
	case isP2SH(script):
		return tagP2SH, script[2:22]
	case isCompressedP2PK(script):
		// The pubkey prefix byte 0x02/0x03 doubles as the tag.
		return uint64(script[1]), script[2:34]
	case isUncompressedP2PK(script):
		return uint64(tagP2PKUncEven | script[65]&1), script[2:34]
	default:
		return uint64(len(script)) + numSpecialTags, script
	}
}

// DecompressScript reads the payload for the given tag from r and
// reconstructs the original script. Tags 0 and 1 rebuild the full
// template, 4 and 5 recover the dropped Y coordinate via point
// decompression, tags >= 6 return the raw bytes unchanged.
func DecompressScript(nsize uint64, r io.Reader) ([]byte, error) {
	switch nsize {
	case tagP2PKH:
		hash, err := readPayload(r, 20)
		if err != nil {
			return nil, err
		}
		script := make([]byte, 0, 25)
		script = append(script, opDup, opHash160, opData20)
		script = append(script, hash...)
		return append(script, opEqualVerify, opChecksig), nil

	case tagP2SH:
		hash, err := readPayload(r, 20)
		if err != nil {
			return nil, err
		}
		script := make([]byte, 0, 23)
		script = append(script, opHash160, opData20)
		script = append(script, hash...)
		return append(script, opEqual), nil

	case tagP2PKEven, tagP2PKOdd:
		x, err := readPayload(r, 32)
		if err != nil {
			return nil, err
		}
		script := make([]byte, 0, 35)
		script = append(script, opData33, byte(nsize))
		script = append(script, x...)
		return append(script, opChecksig), nil

	case tagP2PKUncEven, tagP2PKUncOdd:
		x, err := readPayload(r, 32)
		if err != nil {
			return nil, err
		}
		compressed := make([]byte, 0, 33)
		compressed = append(compressed, byte(nsize-2))
		compressed = append(compressed, x...)
		pubkey, err := btcec.ParsePubKey(compressed)
		if err != nil {
			return nil, ErrBadPubkey
		}
		script := make([]byte, 0, 67)
		script = append(script, opData65)
		script = append(script, pubkey.SerializeUncompressed()...)
		return append(script, opChecksig), nil

	default:
		size := nsize - numSpecialTags
		if size > maxRawScriptLen {
			return nil, ErrBadScriptTag
		}
		return readPayload(r, int(size))
	}
}

func readPayload(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, ErrTruncated
	}
	return buf, nil
}

func isP2PKH(script []byte) bool {
	return len(script) == 25 &&
		script[0] == opDup && script[1] == opHash160 && script[2] == opData20 &&
		script[23] == opEqualVerify && script[24] == opChecksig
}

func isP2SH(script []byte) bool {
	return len(script) == 23 &&
		script[0] == opHash160 && script[1] == opData20 && script[22] == opEqual
}

func isCompressedP2PK(script []byte) bool {
	return len(script) == 35 &&
		script[0] == opData33 && script[34] == opChecksig &&
		(script[1] == 0x02 || script[1] == 0x03)
}

// isUncompressedP2PK additionally requires the key to be a valid curve
// point: reconstruction on decompress would fail otherwise, so such
// scripts are stored raw.
func isUncompressedP2PK(script []byte) bool {
	if len(script) != 67 ||
		script[0] != opData65 || script[66] != opChecksig || script[1] != 0x04 {
		return false
	}
	_, err := btcec.ParsePubKey(script[1:66])
	return err == nil
}
