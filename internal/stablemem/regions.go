// Package stablemem reads the paged stable memory snapshot produced
// by the ledger runtime: a region table mapping small integer ids to
// page-aligned byte ranges, one CBOR upgrade blob and up to six typed
// key/value map regions.
package stablemem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// PageSize is the stable memory page granularity. Region ranges are
// page aligned.
const PageSize = 64 * 1024

// Region ids. The assignment is fixed; an id outside this set is a
// hard error, never skipped.
const (
	RegionUpgrade      uint8 = 0
	RegionAddressIndex uint8 = 1
	RegionSmallUtxos   uint8 = 2
	RegionMediumUtxos  uint8 = 3
	RegionBalances     uint8 = 4
	RegionHeaders      uint8 = 5
	RegionHeights      uint8 = 6
)

var (
	ErrBadMagic        = errors.New("stablemem: bad snapshot magic")
	ErrUnknownRegion   = errors.New("stablemem: unknown region id")
	ErrDuplicateRegion = errors.New("stablemem: duplicate region id")
	ErrTruncatedRegion = errors.New("stablemem: region range past end of file")
	ErrMissingUpgrade  = errors.New("stablemem: upgrade region 0 absent")
	ErrUpgradeDecode   = errors.New("stablemem: upgrade blob decode")
)

var snapshotMagic = [4]byte{'S', 'M', 'R', 'G'}

const (
	tableHeaderLen = 4 + 2 + 2 // magic, version, region count
	tableEntryLen  = 1 + 4 + 8 // id, first page, byte length
)

// parseRegions reads the region table from page 0 and slices the file
// into per-region byte ranges.
func parseRegions(data []byte) (map[uint8][]byte, error) {
	if len(data) < tableHeaderLen {
		return nil, ErrBadMagic
	}
	if !bytes.Equal(data[:4], snapshotMagic[:]) {
		return nil, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != 1 {
		return nil, fmt.Errorf("stablemem: unsupported snapshot version %d", version)
	}
	count := int(binary.LittleEndian.Uint16(data[6:8]))

	if len(data) < tableHeaderLen+count*tableEntryLen {
		return nil, ErrTruncatedRegion
	}

	regions := make(map[uint8][]byte, count)
	for i := 0; i < count; i++ {
		entry := data[tableHeaderLen+i*tableEntryLen:]
		id := entry[0]
		firstPage := binary.LittleEndian.Uint32(entry[1:5])
		length := binary.LittleEndian.Uint64(entry[5:13])

		if id > RegionHeights {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRegion, id)
		}
		if _, dup := regions[id]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateRegion, id)
		}

		offset := uint64(firstPage) * PageSize
		if offset+length > uint64(len(data)) {
			return nil, fmt.Errorf("%w: region %d [%d, %d)", ErrTruncatedRegion, id, offset, offset+length)
		}
		regions[id] = data[offset : offset+length]
	}

	return regions, nil
}
