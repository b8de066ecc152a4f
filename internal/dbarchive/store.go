// Package dbarchive persists verification runs in a Pebble store so
// digests from independent runs can be compared later. Runs are keyed
// by their combined digest: re-archiving an identical snapshot is a
// no-op overwrite.
package dbarchive

import (
	"errors"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/types"
	"github.com/setavenger/utxo-audit/internal/validate"
)

// Prefix Keys "K"
const (
	KRun = 0x01
)

var ErrRunNotFound = errors.New("dbarchive: no run with that digest")

type Store struct {
	DB *pebble.DB
}

func Open(path string) (*Store, error) {
	opts := (&pebble.Options{}).EnsureDefaults()
	opts.BytesPerSync = 1 << 20

	db, err := pebble.Open(path, opts)
	if err != nil {
		logging.L.Err(err).Str("path", path).Msg("error opening archive db")
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Counts are the dataset sizes of one run.
type Counts struct {
	Utxos        int `cbor:"utxos"`
	AddressUtxos int `cbor:"address_utxos"`
	Balances     int `cbor:"balances"`
	Headers      int `cbor:"headers"`
	Heights      int `cbor:"heights"`
}

// RunFinding mirrors validate.Finding in a storable form.
type RunFinding struct {
	Kind string `cbor:"kind"`
	Key  string `cbor:"key"`
}

// Run is one archived verification run.
type Run struct {
	Source    string        `cbor:"source"`
	Network   string        `cbor:"network"`
	TipHeight uint32        `cbor:"tip_height"`
	CreatedAt time.Time     `cbor:"created_at"`
	Counts    Counts        `cbor:"counts"`
	Digests   types.Digests `cbor:"digests"`
	Findings  []RunFinding  `cbor:"findings"`
}

// NewRun assembles the archive record for a snapshot and its report.
func NewRun(snap *types.StateSnapshot, report validate.Report) *Run {
	run := &Run{
		Source:    snap.Source.String(),
		Network:   snap.Meta.Network,
		TipHeight: snap.Meta.TipHeight,
		CreatedAt: time.Now().UTC(),
		Counts: Counts{
			Utxos:        len(snap.Utxos),
			AddressUtxos: len(snap.AddressUtxos),
			Balances:     len(snap.Balances),
			Headers:      len(snap.Headers),
			Heights:      len(snap.Heights),
		},
		Digests: snap.Digests,
	}
	for _, f := range report.Findings {
		run.Findings = append(run.Findings, RunFinding{Kind: f.Kind.String(), Key: f.Key})
	}
	return run
}

func runKey(combined types.Digest) []byte {
	return append([]byte{KRun}, combined[:]...)
}

func (s *Store) PutRun(run *Run) error {
	value, err := cbor.Marshal(run)
	if err != nil {
		logging.L.Err(err).Msg("error serialising run")
		return err
	}
	return s.DB.Set(runKey(run.Digests.Combined), value, pebble.Sync)
}

func (s *Store) GetRun(combined types.Digest) (*Run, error) {
	value, closer, err := s.DB.Get(runKey(combined))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	defer closer.Close()

	var run Run
	if err := cbor.Unmarshal(value, &run); err != nil {
		logging.L.Err(err).Msg("error deserialising run")
		return nil, err
	}
	return &run, nil
}

// ListRuns returns every archived run, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	lb := []byte{KRun}
	ub := []byte{KRun + 1}
	it, err := s.DB.NewIter(&pebble.IterOptions{LowerBound: lb, UpperBound: ub})
	if err != nil {
		logging.L.Err(err).Msg("error getting run iterator")
		return nil, err
	}
	defer it.Close()

	var runs []*Run
	for ok := it.First(); ok; ok = it.Next() {
		var run Run
		if err := cbor.Unmarshal(it.Value(), &run); err != nil {
			logging.L.Err(err).Msg("error deserialising run")
			return nil, err
		}
		runs = append(runs, &run)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}
