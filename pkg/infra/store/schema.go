package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	_ "embed"

	"github.com/m-mizutani/goerr/v2"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin migration transaction")
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		_ = tx.Rollback()
		return goerr.Wrap(err, "failed to apply schema")
	}

	var versionStr string
	err = tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&versionStr)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(schemaVersion)); err != nil {
			_ = tx.Rollback()
			return goerr.Wrap(err, "failed to record schema version")
		}
		return tx.Commit()
	}
	if err != nil {
		_ = tx.Rollback()
		return goerr.Wrap(err, "failed to read schema version")
	}

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		_ = tx.Rollback()
		return goerr.Wrap(err, "failed to parse schema version", goerr.V("value", versionStr))
	}
	if version > schemaVersion {
		_ = tx.Rollback()
		return goerr.New("database schema is newer than this binary supports",
			goerr.V("db_version", version),
			goerr.V("supported", schemaVersion),
		)
	}

	return tx.Commit()
}
