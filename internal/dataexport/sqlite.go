package dataexport

import (
	"context"
	"database/sql"
	"time"

	"github.com/setavenger/utxo-audit/internal/logging"
	"github.com/setavenger/utxo-audit/internal/types"
	"github.com/setavenger/utxo-audit/internal/validate"
	_ "modernc.org/sqlite" // driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS utxos (
  txid     BLOB    NOT NULL,
  vout     INTEGER NOT NULL,
  amount   INTEGER NOT NULL,
  script   BLOB    NOT NULL,
  height   INTEGER NOT NULL,
  coinbase INTEGER NOT NULL,

  PRIMARY KEY (txid, vout)
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS address_utxos (
  address TEXT    NOT NULL,
  txid    BLOB    NOT NULL,
  vout    INTEGER NOT NULL,
  height  INTEGER NOT NULL,

  PRIMARY KEY (address, txid, vout)
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS balances (
  address TEXT PRIMARY KEY,
  balance INTEGER NOT NULL
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS headers (
  block_hash BLOB PRIMARY KEY,
  raw        BLOB NOT NULL
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS heights (
  block_height INTEGER PRIMARY KEY,
  block_hash   BLOB NOT NULL
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS digests (
  name   TEXT PRIMARY KEY,
  digest TEXT NOT NULL
) STRICT, WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS findings (
  id   INTEGER PRIMARY KEY,
  kind TEXT NOT NULL,
  key  TEXT NOT NULL
) STRICT;

CREATE INDEX IF NOT EXISTS ix_utxos_height ON utxos(height);
CREATE INDEX IF NOT EXISTS ix_address_utxos_txid ON address_utxos(txid, vout);
`

func openExportDB(path string) (*sql.DB, error) {
	dsn := "file:" + path +
		"?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(OFF)" +
		"&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ExportSQLite writes the full snapshot, digests and findings into a
// fresh SQLite database at path.
func ExportSQLite(ctx context.Context, path string, snap *types.StateSnapshot, report validate.Report) error {
	logging.L.Info().Msgf("Writing to %s", path)

	db, err := openExportDB(path)
	if err != nil {
		logging.L.Err(err).Msg("error opening export db")
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertSnapshot(ctx, tx, snap); err != nil {
		return err
	}
	if err := insertDigests(ctx, tx, snap.Digests); err != nil {
		return err
	}
	for _, finding := range report.Findings {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO findings(kind, key) VALUES (?,?)", finding.Kind.String(), finding.Key); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertSnapshot(ctx context.Context, tx *sql.Tx, snap *types.StateSnapshot) error {
	insUtxo, err := tx.PrepareContext(ctx,
		"INSERT INTO utxos(txid,vout,amount,script,height,coinbase) VALUES (?,?,?,?,?,?)")
	if err != nil {
		return err
	}
	for i := range snap.Utxos {
		u := &snap.Utxos[i]
		coinbase := 0
		if u.Coinbase {
			coinbase = 1
		}
		if _, err := insUtxo.ExecContext(ctx,
			u.OutPoint.Txid[:], u.OutPoint.Vout, int64(u.TxOut.Value), u.TxOut.PkScript, u.Height, coinbase); err != nil {
			return err
		}
	}

	insAddrUtxo, err := tx.PrepareContext(ctx,
		"INSERT INTO address_utxos(address,txid,vout,height) VALUES (?,?,?,?)")
	if err != nil {
		return err
	}
	for i := range snap.AddressUtxos {
		e := &snap.AddressUtxos[i]
		if _, err := insAddrUtxo.ExecContext(ctx, e.Address, e.OutPoint.Txid[:], e.OutPoint.Vout, e.Height); err != nil {
			return err
		}
	}

	insBalance, err := tx.PrepareContext(ctx, "INSERT INTO balances(address,balance) VALUES (?,?)")
	if err != nil {
		return err
	}
	for i := range snap.Balances {
		b := &snap.Balances[i]
		if _, err := insBalance.ExecContext(ctx, b.Address, int64(b.Balance)); err != nil {
			return err
		}
	}

	insHeader, err := tx.PrepareContext(ctx, "INSERT INTO headers(block_hash,raw) VALUES (?,?)")
	if err != nil {
		return err
	}
	for i := range snap.Headers {
		h := &snap.Headers[i]
		if _, err := insHeader.ExecContext(ctx, h.Hash[:], h.Raw); err != nil {
			return err
		}
	}

	insHeight, err := tx.PrepareContext(ctx, "INSERT INTO heights(block_height,block_hash) VALUES (?,?)")
	if err != nil {
		return err
	}
	for i := range snap.Heights {
		h := &snap.Heights[i]
		if _, err := insHeight.ExecContext(ctx, h.Height, h.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func insertDigests(ctx context.Context, tx *sql.Tx, digests types.Digests) error {
	rows := []struct {
		name   string
		digest types.Digest
	}{
		{"utxo_set", digests.UtxoSet},
		{"address_utxos", digests.AddressUtxos},
		{"address_balances", digests.AddressBalances},
		{"block_headers", digests.BlockHeaders},
		{"block_heights", digests.BlockHeights},
		{"combined", digests.Combined},
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO digests(name, digest) VALUES (?,?)", row.name, row.digest.String()); err != nil {
			return err
		}
	}
	return nil
}
