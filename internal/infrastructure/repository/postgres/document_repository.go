package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// DocumentRepository stores parent documents in Postgres.
type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS knowledge_documents (
	id TEXT PRIMARY KEY,
	collection_id TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL DEFAULT '',
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_knowledge_documents_lookup
	ON knowledge_documents(collection_id, filename, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_knowledge_documents_hash
	ON knowledge_documents(collection_id, content_hash);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CreateDocument(ctx context.Context, collectionID, content string, metadata domain.Metadata) (string, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
INSERT INTO knowledge_documents (
	id, collection_id, filename, title, content, content_hash, metadata, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		id, collectionID, metadata.String(domain.MetaFilename), metadata.String(domain.MetaTitle),
		content, metadata.String(domain.MetaContentHash), metaJSON, r.now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (r *DocumentRepository) FindExisting(ctx context.Context, collectionID, filename string) (*domain.StoredDocument, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, collection_id, filename, title, content_hash, created_at
FROM knowledge_documents
WHERE collection_id = $1 AND filename = $2
ORDER BY created_at DESC
LIMIT 1
`, collectionID, filename)

	var doc domain.StoredDocument
	err := row.Scan(&doc.ID, &doc.CollectionID, &doc.Filename, &doc.Title, &doc.ContentHash, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan existing document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "delete document", fmt.Errorf("id=%s", id))
	}
	return nil
}

// GetByID returns the stored record with its full content.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.ParentDocument, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, content, metadata
FROM knowledge_documents
WHERE id = $1
`, id)

	var (
		doc     domain.ParentDocument
		metaRaw []byte
	)
	if err := row.Scan(&doc.ID, &doc.Content, &metaRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if err := json.Unmarshal(metaRaw, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &doc, nil
}
