package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path"

	"github.com/rs/zerolog"

	"github.com/setavenger/utxo-audit/internal/canonical"
	"github.com/setavenger/utxo-audit/internal/chainstate"
	"github.com/setavenger/utxo-audit/internal/config"
	"github.com/setavenger/utxo-audit/internal/dataexport"
	"github.com/setavenger/utxo-audit/internal/dbarchive"
	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/stablemem"
	"github.com/setavenger/utxo-audit/internal/types"
	"github.com/setavenger/utxo-audit/internal/validate"
)

var (
	displayVersion bool
	Version        = "0.0.0"
)

var (
	snapshotPath   string
	chainstatePath string
	exportCSV      bool
	exportSQLite   bool
	archiveRun     bool
	quiet          bool
	strict         bool
)

func init() {
	flag.StringVar(
		&config.BaseDirectory,
		"datadir",
		config.DefaultBaseDirectory,
		"Set the base directory for utxo-audit. Default directory is ~/.utxo-audit",
	)
	flag.BoolVar(
		&displayVersion,
		"version",
		false,
		"show version of utxo-audit",
	)
	flag.StringVar(
		&snapshotPath,
		"snapshot",
		"",
		"path to a stable memory snapshot file",
	)
	flag.StringVar(
		&chainstatePath,
		"chainstate",
		"",
		"path to a chainstate leveldb directory",
	)
	flag.BoolVar(
		&exportCSV,
		"export-csv",
		false,
		"export the utxo set, balances and heights as csv",
	)
	flag.BoolVar(
		&exportSQLite,
		"export-sqlite",
		false,
		"export the full snapshot into a sqlite database",
	)
	flag.BoolVar(
		&archiveRun,
		"archive",
		false,
		"record this run in the archive database",
	)
	flag.BoolVar(
		&quiet,
		"quiet",
		false,
		"only print the combined digest",
	)
	flag.BoolVar(
		&strict,
		"strict",
		false,
		"exit non-zero when the snapshot has consistency findings",
	)
	flag.Parse()

	if displayVersion {
		// we only need the version for this
		return
	}

	config.SetDirectories()
	err := os.Mkdir(config.BaseDirectory, 0750)
	if err != nil && !errors.Is(err, os.ErrExist) {
		logging.L.Fatal().Err(err).Msg("error creating base directory")
	}

	// load after loggers are instantiated
	config.LoadConfigs(path.Join(config.BaseDirectory, config.ConfigFileName))

	if err := logging.SetupLoggers(config.LogsPath, config.LogToConsole, config.LogLevel); err != nil {
		logging.L.Fatal().Err(err).Msg("error configuring loggers")
	}
	if quiet {
		logging.SetLogLevel(zerolog.ErrorLevel)
	}
}

func main() {
	if displayVersion {
		fmt.Printf("utxo-audit %s\n", Version)
		return
	}

	if (snapshotPath == "") == (chainstatePath == "") {
		logging.L.Fatal().Msg("exactly one of -snapshot and -chainstate must be set")
	}

	var (
		raw *types.RawState
		err error
	)
	if snapshotPath != "" {
		raw, err = stablemem.Read(snapshotPath)
	} else {
		raw, err = chainstate.Read(chainstatePath)
	}
	if err != nil {
		logging.L.Fatal().Err(err).Msg("error reading source")
	}

	snap, err := canonical.Build(raw)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("error canonicalizing state")
	}

	report := validate.Check(snap)

	if quiet {
		fmt.Println(snap.Digests.Combined)
	} else {
		printReport(snap, report)
	}

	if exportCSV || exportSQLite {
		if err := os.MkdirAll(config.ExportPath, 0750); err != nil {
			logging.L.Fatal().Err(err).Msg("error creating export directory")
		}
	}
	if exportCSV {
		runCSVExports(snap)
	}
	if exportSQLite {
		sqlitePath := path.Join(config.ExportPath, "snapshot.sqlite")
		if err := dataexport.ExportSQLite(context.Background(), sqlitePath, snap, report); err != nil {
			logging.L.Fatal().Err(err).Msg("error exporting sqlite")
		}
	}
	if archiveRun {
		archive(snap, report)
	}

	if strict && !report.OK() {
		os.Exit(1)
	}
}

func runCSVExports(snap *types.StateSnapshot) {
	if err := dataexport.ExportUTXOs(path.Join(config.ExportPath, "utxos.csv"), snap); err != nil {
		logging.L.Fatal().Err(err).Msg("error exporting utxos")
	}
	if err := dataexport.ExportBalances(path.Join(config.ExportPath, "balances.csv"), snap); err != nil {
		logging.L.Fatal().Err(err).Msg("error exporting balances")
	}
	if err := dataexport.ExportHeights(path.Join(config.ExportPath, "heights.csv"), snap); err != nil {
		logging.L.Fatal().Err(err).Msg("error exporting heights")
	}
}

func archive(snap *types.StateSnapshot, report validate.Report) {
	store, err := dbarchive.Open(config.ArchivePath)
	if err != nil {
		logging.L.Fatal().Err(err).Msg("error opening archive")
	}
	defer store.Close()

	if err := store.PutRun(dbarchive.NewRun(snap, report)); err != nil {
		logging.L.Fatal().Err(err).Msg("error archiving run")
	}
	logging.L.Info().Str("combined", snap.Digests.Combined.String()).Msg("run archived")
}
