// Package store persists clustered documents, their embeddings and the
// pipeline's run and failure log in SQLite, with sqlite-vec providing the
// vector distance functions.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/synqa/sources"
)

func init() {
	sqlite_vec.Auto()
}

// ErrDocumentNotFound is returned when no document with the requested file
// name has been saved.
var ErrDocumentNotFound = errors.New("store: document not found")

// DocumentInfo represents a row in the documents table.
type DocumentInfo struct {
	ID             int64  `json:"id"`
	FileName       string `json:"file_name"`
	RecordCount    int    `json:"record_count"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// Run represents a row in the stage_runs table.
type Run struct {
	ID         string `json:"id"`
	Stage      string `json:"stage"`
	Documents  int    `json:"documents"`
	ItemsIn    int    `json:"items_in"`
	ItemsOut   int    `json:"items_out"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// Drop represents a row in the dropped_items table.
type Drop struct {
	RunID    string `json:"run_id"`
	Stage    string `json:"stage"`
	FileName string `json:"file_name"`
	Question string `json:"question,omitempty"`
	Reason   string `json:"reason"`
}

// Store wraps the SQLite database for all synqa persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Document operations ---

// SaveDocument stores a document and its records, replacing any earlier
// version with the same file name. Returns the document ID.
func (s *Store) SaveDocument(ctx context.Context, doc *sources.Document, embeddingModel string) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO documents (file_name, record_count, embedding_model)
			VALUES (?, ?, ?)
			ON CONFLICT(file_name) DO UPDATE SET
				record_count = excluded.record_count,
				embedding_model = excluded.embedding_model,
				updated_at = CURRENT_TIMESTAMP
			RETURNING id
		`, doc.FileName, doc.Len(), embeddingModel).Scan(&id)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE document_id = ?", id); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sources (document_id, position, source_identifier, content, text_only, type, cluster, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range doc.Records {
			var emb []byte
			if len(r.Embedding) > 0 {
				emb = serializeFloat32(r.Embedding)
			}
			if _, err := stmt.ExecContext(ctx, id, i, r.Identifier, r.Content,
				nullString(r.TextOnly), string(r.Type), r.Cluster, emb); err != nil {
				return fmt.Errorf("inserting %s: %w", r.Identifier, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("saving %s: %w", doc.FileName, err)
	}
	return id, nil
}

// LoadDocument rebuilds a saved document with its records in order.
func (s *Store) LoadDocument(ctx context.Context, fileName string) (*sources.Document, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM documents WHERE file_name = ?", fileName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, fileName)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT source_identifier, content, text_only, type, cluster, embedding
		FROM sources WHERE document_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []sources.Record
	for rows.Next() {
		var r sources.Record
		var textOnly sql.NullString
		var typ string
		var emb []byte
		if err := rows.Scan(&r.Identifier, &r.Content, &textOnly, &typ, &r.Cluster, &emb); err != nil {
			return nil, err
		}
		r.TextOnly = textOnly.String
		r.Type = sources.NormalizeType(typ)
		if len(emb) > 0 {
			r.Embedding = deserializeFloat32(emb)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sources.NewDocument(fileName, records), nil
}

// ListDocuments returns all saved documents ordered by file name.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_name, record_count, embedding_model, created_at, updated_at
		FROM documents ORDER BY file_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		var model sql.NullString
		if err := rows.Scan(&d.ID, &d.FileName, &d.RecordCount, &model, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.EmbeddingModel = model.String
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// --- Similarity search ---

// SimilarSources returns the k records of doc whose stored embeddings are
// closest to query by cosine distance, skipping the identifiers in exclude.
// Records embedded with a different dimension, or with a zero vector, are
// ignored. It satisfies sources.Searcher.
func (s *Store) SimilarSources(ctx context.Context, doc *sources.Document, query []float32, exclude []string, k int) ([]sources.Match, error) {
	if len(query) == 0 || k == 0 {
		return nil, nil
	}

	q := `
		SELECT s.source_identifier, vec_distance_cosine(s.embedding, ?) AS distance
		FROM sources s
		JOIN documents d ON d.id = s.document_id
		WHERE d.file_name = ? AND length(s.embedding) = ?`
	args := []any{serializeFloat32(query), doc.FileName, len(query) * 4}
	if len(exclude) > 0 {
		q += " AND s.source_identifier NOT IN (?" + repeatPlaceholders(len(exclude)-1) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	q += " ORDER BY distance, s.position"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search in %s: %w", doc.FileName, err)
	}
	defer rows.Close()

	var matches []sources.Match
	for rows.Next() {
		var m sources.Match
		// Zero vectors have no cosine distance; SQLite returns NULL.
		var distance sql.NullFloat64
		if err := rows.Scan(&m.Identifier, &distance); err != nil {
			return nil, err
		}
		if !distance.Valid {
			continue
		}
		m.Similarity = 1.0 - distance.Float64
		matches = append(matches, m)
		if k > 0 && len(matches) == k {
			break
		}
	}
	return matches, rows.Err()
}

// --- Run log ---

// BeginRun records the start of a pipeline stage and returns its run ID.
func (s *Store) BeginRun(ctx context.Context, stage string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, "INSERT INTO stage_runs (id, stage) VALUES (?, ?)", id, stage)
	if err != nil {
		return "", fmt.Errorf("recording %s run: %w", stage, err)
	}
	return id, nil
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, documents, itemsIn, itemsOut int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE stage_runs
		SET documents = ?, items_in = ?, items_out = ?, finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, documents, itemsIn, itemsOut, runID)
	return err
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	r := &Run{}
	var finished sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, stage, documents, items_in, items_out, started_at, finished_at
		FROM stage_runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.Stage, &r.Documents, &r.ItemsIn, &r.ItemsOut, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	r.FinishedAt = finished.String
	return r, nil
}

// RecordDrop logs an item a stage discarded.
func (s *Store) RecordDrop(ctx context.Context, d Drop) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dropped_items (run_id, stage, file_name, question, reason)
		VALUES (?, ?, ?, ?, ?)
	`, d.RunID, d.Stage, d.FileName, nullString(d.Question), d.Reason)
	return err
}

// Drops returns the items dropped during a run in insertion order.
func (s *Store) Drops(ctx context.Context, runID string) ([]Drop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, stage, file_name, question, reason
		FROM dropped_items WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drops []Drop
	for rows.Next() {
		var d Drop
		var question sql.NullString
		if err := rows.Scan(&d.RunID, &d.Stage, &d.FileName, &question, &d.Reason); err != nil {
			return nil, err
		}
		d.Question = question.String
		drops = append(drops, d)
	}
	return drops, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	return strings.Repeat(", ?", n)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
