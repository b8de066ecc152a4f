package stablemem

import (
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/setavenger/utxo-audit/internal/config"
	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/types"
)

// Read loads a stable memory snapshot file and decodes every region
// into a RawState. The upgrade region is mandatory; the map regions
// are each optional and decode to empty datasets when absent.
func Read(path string) (*types.RawState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("stablemem: read snapshot: %w", err)
	}
	return Decode(data)
}

// Decode parses an in memory snapshot image.
func Decode(data []byte) (*types.RawState, error) {
	regions, err := parseRegions(data)
	if err != nil {
		return nil, err
	}

	upgradeRaw, ok := regions[RegionUpgrade]
	if !ok {
		return nil, ErrMissingUpgrade
	}
	meta, largeUtxos, err := decodeUpgrade(upgradeRaw)
	if err != nil {
		return nil, err
	}

	state := &types.RawState{
		Source: types.SourceStableMemory,
		Meta:   meta,
	}

	// The map regions are independent byte ranges, decode them in
	// parallel. Each goroutine writes one distinct field.
	var g errgroup.Group
	limit := config.MaxWorkers
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	var smallUtxos, mediumUtxos []types.Utxo
	g.Go(func() (err error) {
		smallUtxos, err = decodeUtxoRegion(regions[RegionSmallUtxos], types.ScriptSmall)
		return wrapRegion(RegionSmallUtxos, err)
	})
	g.Go(func() (err error) {
		mediumUtxos, err = decodeUtxoRegion(regions[RegionMediumUtxos], types.ScriptMedium)
		return wrapRegion(RegionMediumUtxos, err)
	})
	g.Go(func() (err error) {
		state.AddressUtxos, err = decodeAddressIndex(regions[RegionAddressIndex])
		return wrapRegion(RegionAddressIndex, err)
	})
	g.Go(func() (err error) {
		state.Balances, err = decodeBalances(regions[RegionBalances])
		return wrapRegion(RegionBalances, err)
	})
	g.Go(func() (err error) {
		state.Headers, err = decodeHeaders(regions[RegionHeaders])
		return wrapRegion(RegionHeaders, err)
	})
	g.Go(func() (err error) {
		state.Heights, err = decodeHeights(regions[RegionHeights])
		return wrapRegion(RegionHeights, err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	state.Utxos = make([]types.Utxo, 0, len(smallUtxos)+len(mediumUtxos)+len(largeUtxos))
	state.Utxos = append(state.Utxos, smallUtxos...)
	state.Utxos = append(state.Utxos, mediumUtxos...)
	state.Utxos = append(state.Utxos, largeUtxos...)

	logging.L.Info().
		Str("network", meta.Network).
		Uint32("tip_height", meta.TipHeight).
		Int("utxos", len(state.Utxos)).
		Int("address_utxos", len(state.AddressUtxos)).
		Int("balances", len(state.Balances)).
		Int("headers", len(state.Headers)).
		Int("heights", len(state.Heights)).
		Msg("decoded stable memory snapshot")

	return state, nil
}

func wrapRegion(id uint8, err error) error {
	if err != nil {
		return fmt.Errorf("region %d: %w", id, err)
	}
	return nil
}
