package config

import (
	"runtime"

	"github.com/btcsuite/btcd/chaincfg"
)

const (
	ConfigFileName       string = "utxo-audit.toml"
	DefaultBaseDirectory string = "~/.utxo-audit"
)

var (
	LogLevel     = "info"
	LogsPath     = ""
	LogToConsole = true

	BaseDirectory = ""
	ArchivePath   = ""
	ExportPath    = ""
)

type chain int

const (
	Unknown chain = iota
	Mainnet
	Signet
	Regtest
	Testnet3
)

var (
	Chain = Unknown

	// MaxWorkers caps the number of concurrent region decoders and
	// digest computations. We default to max num cores - 2.
	MaxWorkers = runtime.NumCPU() - 2

	// CSVFields is the ordered column subset written by the CSV export.
	CSVFields = []string{"height", "txid", "vout", "amount", "type", "address", "script", "coinbase", "nsize"}
)

// ChainParams returns the chaincfg params for the configured chain.
// Address rendering in the export layer needs the version bytes.
func ChainParams() *chaincfg.Params {
	switch Chain {
	case Mainnet:
		return &chaincfg.MainNetParams
	case Signet:
		return &chaincfg.SigNetParams
	case Regtest:
		return &chaincfg.RegressionNetParams
	case Testnet3:
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.MainNetParams
	}
}
