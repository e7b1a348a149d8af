package store

// schemaSQL is the DDL for all tables. Embeddings are stored as sqlite-vec
// float32 blobs next to their record so that similarity search can be
// scoped to one document and any embedding model.
const schemaSQL = `
-- One row per clustered document
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    file_name TEXT NOT NULL UNIQUE,
    record_count INTEGER NOT NULL,
    embedding_model TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Source records in document order
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY,
    document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    source_identifier TEXT NOT NULL,
    content TEXT NOT NULL,
    text_only TEXT,
    type TEXT NOT NULL,
    cluster INTEGER NOT NULL DEFAULT 0,
    embedding BLOB,
    UNIQUE(document_id, source_identifier)
);

-- Pipeline stage executions
CREATE TABLE IF NOT EXISTS stage_runs (
    id TEXT PRIMARY KEY,
    stage TEXT NOT NULL,
    documents INTEGER DEFAULT 0,
    items_in INTEGER DEFAULT 0,
    items_out INTEGER DEFAULT 0,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

-- Items dropped by a stage, with the reason
CREATE TABLE IF NOT EXISTS dropped_items (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES stage_runs(id) ON DELETE CASCADE,
    stage TEXT NOT NULL,
    file_name TEXT NOT NULL,
    question TEXT,
    reason TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sources_document ON sources(document_id, position);
CREATE INDEX IF NOT EXISTS idx_sources_cluster ON sources(document_id, cluster);
CREATE INDEX IF NOT EXISTS idx_dropped_run ON dropped_items(run_id);
`
