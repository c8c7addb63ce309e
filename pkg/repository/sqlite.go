package repository

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/goerr/v2"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	prompt TEXT NOT NULL,
	image_path TEXT,
	model_path TEXT,
	embedding BLOB,
	created_at INTEGER NOT NULL
)`

// SQLite implements Repository on an embedded sqlite database. It is the
// default backend; similarity search runs against the in-process vector
// index, which is rebuilt from this table on startup.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if needed initializes) a sqlite database at the given
// path. Use ":memory:" for an ephemeral database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, goerr.New("database path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to initialize sqlite schema")
	}

	return &SQLite{db: db}, nil
}

func (r *SQLite) PutRecord(ctx context.Context, record *model.MemoryRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memories (id, prompt, image_path, model_path, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(record.ID),
		record.Prompt,
		record.ImagePath,
		record.ModelPath,
		encodeEmbedding(record.Embedding),
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to insert record", goerr.V("id", record.ID))
	}
	return nil
}

func (r *SQLite) GetRecord(ctx context.Context, id model.RecordID) (*model.MemoryRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, prompt, image_path, model_path, embedding, created_at FROM memories WHERE id = ?`,
		string(id),
	)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(model.ErrRecordNotFound, "no such record", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get record", goerr.V("id", id))
	}
	return record, nil
}

func (r *SQLite) ListRecords(ctx context.Context, offset, limit int) ([]*model.MemoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, prompt, image_path, model_path, embedding, created_at FROM memories ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list records")
	}
	defer rows.Close()

	var records []*model.MemoryRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate records")
	}

	return records, nil
}

func (r *SQLite) ForEachEmbedding(ctx context.Context, fn func(id model.RecordID, embedding []float32) error) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, embedding FROM memories WHERE embedding IS NOT NULL AND length(embedding) > 0 ORDER BY created_at, id`,
	)
	if err != nil {
		return goerr.Wrap(err, "failed to query embeddings")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return goerr.Wrap(err, "failed to scan embedding")
		}
		if err := fn(model.RecordID(id), decodeEmbedding(blob)); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *SQLite) Close() error {
	if err := r.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close sqlite database")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.MemoryRecord, error) {
	var (
		id, prompt           string
		imagePath, modelPath sql.NullString
		blob                 []byte
		createdAt            int64
	)
	if err := s.Scan(&id, &prompt, &imagePath, &modelPath, &blob, &createdAt); err != nil {
		return nil, err
	}

	return &model.MemoryRecord{
		ID:        model.RecordID(id),
		Prompt:    prompt,
		ImagePath: imagePath.String,
		ModelPath: modelPath.String,
		Embedding: decodeEmbedding(blob),
		CreatedAt: time.Unix(0, createdAt),
	}, nil
}

// encodeEmbedding packs a float32 vector into a little-endian blob.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	if len(blob) < 4 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
