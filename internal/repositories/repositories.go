// package repositories provides persistence layer implementations for the
// normalized listening data model.
//
// Batch write methods take a [*sql.Tx] so the loader can commit each entity
// group as a single transaction; read methods run against the pool. Write
// semantics follow each entity's [models.WritePolicy]: ON CONFLICT DO UPDATE
// for upsertable entities, ON CONFLICT DO NOTHING for insert-once entities,
// plain INSERT for append-only facts.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
)

// execBatch runs a prepared statement once per argument tuple and returns
// the number of rows actually written (conflict no-ops excluded).
func execBatch(ctx context.Context, tx *sql.Tx, query string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var written int64
	for _, args := range rows {
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return written, fmt.Errorf("failed to execute statement: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, fmt.Errorf("failed to get affected rows: %w", err)
		}
		written += n
	}

	return written, nil
}
