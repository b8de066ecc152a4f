// Package dataexport writes a verified snapshot out for ad-hoc
// auditing: the UTXO set as CSV with a configurable column subset, and
// the full snapshot as a SQLite database.
package dataexport

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"

	"github.com/setavenger/utxo-audit/internal/config"
	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/serialisation"
	"github.com/setavenger/utxo-audit/internal/types"
)

func writeToCSV(path string, records [][]string) error {
	if idx := strings.LastIndex(path, "/"); idx > 0 {
		os.MkdirAll(path[:idx], 0750)
	}
	logging.L.Info().Msgf("Writing to %s", path)
	file, err := os.Create(path)
	if err != nil {
		logging.L.Err(err).Msg("failed creating file")
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	return writer.WriteAll(records)
}

// ExportUTXOs writes the UTXO set with the columns from
// config.CSVFields, in configured order.
func ExportUTXOs(path string, snap *types.StateSnapshot) error {
	records, err := convertUTXOsToRecords(snap.Utxos, config.CSVFields)
	if err != nil {
		logging.L.Err(err).Msg("error converting utxos to records")
		return err
	}
	return writeToCSV(path, records)
}

func convertUTXOsToRecords(utxos []types.Utxo, fields []string) ([][]string, error) {
	for _, field := range fields {
		if _, ok := columnFuncs[field]; !ok {
			return nil, fmt.Errorf("dataexport: unknown csv field %q", field)
		}
	}

	records := make([][]string, 0, len(utxos)+1)
	records = append(records, fields)
	for i := range utxos {
		row := make([]string, len(fields))
		for j, field := range fields {
			row[j] = columnFuncs[field](&utxos[i])
		}
		records = append(records, row)
	}
	return records, nil
}

var columnFuncs = map[string]func(*types.Utxo) string{
	"height": func(u *types.Utxo) string {
		return strconv.FormatUint(uint64(u.Height), 10)
	},
	"txid": func(u *types.Utxo) string {
		return hex.EncodeToString(u.OutPoint.Txid[:])
	},
	"vout": func(u *types.Utxo) string {
		return strconv.FormatUint(uint64(u.OutPoint.Vout), 10)
	},
	"amount": func(u *types.Utxo) string {
		return strconv.FormatUint(u.TxOut.Value, 10)
	},
	"type":     scriptType,
	"address":  scriptAddress,
	"script":   func(u *types.Utxo) string { return hex.EncodeToString(u.TxOut.PkScript) },
	"coinbase": func(u *types.Utxo) string { return strconv.FormatBool(u.Coinbase) },
	"nsize": func(u *types.Utxo) string {
		return strconv.FormatUint(serialisation.ScriptNsize(u.TxOut.PkScript), 10)
	},
}

func scriptType(u *types.Utxo) string {
	switch txscript.GetScriptClass(u.TxOut.PkScript) {
	case txscript.PubKeyHashTy:
		return "p2pkh"
	case txscript.ScriptHashTy:
		return "p2sh"
	case txscript.PubKeyTy:
		return "p2pk"
	case txscript.MultiSigTy:
		return "p2ms"
	case txscript.NullDataTy:
		return "nulldata"
	default:
		return "non-standard"
	}
}

func scriptAddress(u *types.Utxo) string {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(u.TxOut.PkScript, config.ChainParams())
	if err != nil || len(addrs) != 1 {
		return ""
	}
	return addrs[0].EncodeAddress()
}

/* Balances */

// ExportBalances writes the aggregate address balances.
func ExportBalances(path string, snap *types.StateSnapshot) error {
	records := make([][]string, 0, len(snap.Balances)+1)
	records = append(records, []string{"address", "balance"})
	for i := range snap.Balances {
		records = append(records, []string{
			snap.Balances[i].Address,
			strconv.FormatUint(snap.Balances[i].Balance, 10),
		})
	}
	return writeToCSV(path, records)
}

/* Heights */

// ExportHeights writes the height to block hash index.
func ExportHeights(path string, snap *types.StateSnapshot) error {
	records := make([][]string, 0, len(snap.Heights)+1)
	records = append(records, []string{"blockHeight", "blockHash"})
	for i := range snap.Heights {
		records = append(records, []string{
			strconv.FormatUint(uint64(snap.Heights[i].Height), 10),
			hex.EncodeToString(snap.Heights[i].Hash[:]),
		})
	}
	return writeToCSV(path, records)
}
