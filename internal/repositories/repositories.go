// package repositories provides the storage backends behind the preference graph.
//
// Both backends satisfy the graph package's Backend port and must behave identically.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/vibes/internal/models"
)

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers give nodes a stable insertion order. They are NOT exposed in CLI output but used for sorting and debugging.
func NextSequence(ctx context.Context, db *sql.DB, table string) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	_, err = tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable))
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence)
	if err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}

	return sequence, nil
}

// SnapshotPersister saves and loads whole-graph snapshots for the in-memory backend.
type SnapshotPersister interface {
	SaveSnapshot(ctx context.Context, snap *models.Snapshot) error
	// LoadSnapshot returns (nil, nil) when nothing has been saved yet.
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
}
