package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/goccy/go-json"
)

const insertArchiveRecord = `
        INSERT INTO archive_records (stream, record_uuid, record_hash, payload)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (stream, record_hash) DO NOTHING`

// Name identifies the mirror in logs and metrics.
func (db *DB) Name() string { return "postgres" }

// Publish stores a batch of archive lines in one transaction. Lines already
// stored for the stream are ignored.
func (db *DB) Publish(ctx context.Context, stream string, lines [][]byte) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin: %w", err)
	}
	defer tx.Rollback()

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx, insertArchiveRecord,
			stream, recordUUID(line), recordHash(line), string(line),
		); err != nil {
			return fmt.Errorf("failed to insert %s record: %w", stream, err)
		}
	}
	return tx.Commit()
}

// CountRecords returns the number of stored lines of a stream.
func (db *DB) CountRecords(ctx context.Context, stream string) (int, error) {
	var n int
	err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM archive_records WHERE stream = $1`, stream)
	return n, err
}

func recordHash(line []byte) string {
	sum := sha256.Sum256(line)
	return hex.EncodeToString(sum[:])
}

func recordUUID(line []byte) string {
	var rec struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(line, &rec); err != nil {
		return ""
	}
	return rec.UUID
}
