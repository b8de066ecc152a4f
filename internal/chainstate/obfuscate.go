package chainstate

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
)

var ErrMissingObfuscationKey = errors.New("chainstate: obfuscation key entry absent")

// obfuscateKeyKey is the fixed lookup key of the obfuscation entry:
// a 0x0e length byte followed by the literal tag.
var obfuscateKeyKey = append([]byte{0x0e}, "obfuscate_key"...)

// loadObfuscationKey reads the XOR mask every value in the database is
// masked with. The first byte of the stored value is the mask length,
// the rest is the mask itself.
func loadObfuscationKey(db *leveldb.DB) ([]byte, error) {
	value, err := db.Get(obfuscateKeyKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrMissingObfuscationKey
		}
		return nil, err
	}
	if len(value) < 2 || int(value[0]) != len(value)-1 {
		return nil, ErrMissingObfuscationKey
	}
	return append([]byte(nil), value[1:]...), nil
}

// deobfuscate XORs value in place with the mask, cycling the mask as
// needed.
func deobfuscate(value, mask []byte) {
	for i := range value {
		value[i] ^= mask[i%len(mask)]
	}
}
