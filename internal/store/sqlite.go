// Package store provides the SQLite implementation of DescriptorStore.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hayate/erabu/internal/models"
)

const defaultBatchSize = 256

// SQLiteStore implements DescriptorStore over a SQLite database.
// Vectors are stored as little-endian float32 blobs.
type SQLiteStore struct {
	db        *sql.DB
	batchSize int
	dims      int
}

// NewSQLiteStore opens the descriptor database at dbPath. When readOnly is
// true the database is opened with mode=ro, so the connection itself cannot
// write. Dimensionality is read from the first row; an empty database is
// valid and reports zero dimensions.
func NewSQLiteStore(dbPath string, readOnly bool, batchSize int) (*SQLiteStore, error) {
	dsn := dbPath
	if readOnly {
		dsn = fmt.Sprintf("file:%s?mode=ro", dbPath)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if !readOnly {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL: %w", err)
		}
		if err := initSchema(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	s := &SQLiteStore{db: db, batchSize: batchSize}
	var blob []byte
	err = db.QueryRow(`SELECT vector FROM descriptors LIMIT 1`).Scan(&blob)
	switch {
	case err == sql.ErrNoRows:
		// empty store
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("failed to probe dimensions: %w", err)
	default:
		s.dims = len(blob) / 4
	}
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS descriptors (
		uid TEXT PRIMARY KEY,
		vector BLOB NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Get returns the vector for uid.
func (s *SQLiteStore) Get(ctx context.Context, uid string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM descriptors WHERE uid = ?`, uid,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, uid)
	}
	if err != nil {
		return nil, err
	}
	return bytesToFloat32Slice(blob), nil
}

// GetMany returns vectors for uids, chunked to the configured batch size.
// UIDs absent from the store are collected into missing.
func (s *SQLiteStore) GetMany(ctx context.Context, uids []string) (map[string][]float32, []string, error) {
	out := make(map[string][]float32, len(uids))
	for start := 0; start < len(uids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(uids) {
			end = len(uids)
		}
		if err := s.getBatch(ctx, uids[start:end], out); err != nil {
			return nil, nil, err
		}
	}
	var missing []string
	for _, uid := range uids {
		if _, ok := out[uid]; !ok {
			missing = append(missing, uid)
		}
	}
	return out, missing, nil
}

func (s *SQLiteStore) getBatch(ctx context.Context, uids []string, out map[string][]float32) error {
	if len(uids) == 0 {
		return nil
	}
	placeholders := "?"
	args := make([]interface{}, len(uids))
	args[0] = uids[0]
	for i := 1; i < len(uids); i++ {
		placeholders += ",?"
		args[i] = uids[i]
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT uid, vector FROM descriptors WHERE uid IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var uid string
		var blob []byte
		if err := rows.Scan(&uid, &blob); err != nil {
			return err
		}
		out[uid] = bytesToFloat32Slice(blob)
	}
	return rows.Err()
}

// Contains reports whether uid is present.
func (s *SQLiteStore) Contains(ctx context.Context, uid string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM descriptors WHERE uid = ?`, uid,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UIDs returns all stored UIDs in ascending order.
func (s *SQLiteStore) UIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT uid FROM descriptors ORDER BY uid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

// Count returns the number of stored descriptors.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM descriptors`).Scan(&n)
	return n, err
}

// Dimensions returns the vector dimensionality probed at open time.
func (s *SQLiteStore) Dimensions() int {
	return s.dims
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func float32SliceToBytes(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(f))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
