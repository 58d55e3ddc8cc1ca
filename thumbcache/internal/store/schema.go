package store

// Schema contains the DDL for the thumbnail mirror table.
//
// byte_size is stored for observability only; the authoritative value is
// recomputed from the image length on hydration so it can never drift.
const Schema = `
CREATE TABLE IF NOT EXISTS thumbnails (
    key          TEXT PRIMARY KEY,
    tab_id       INTEGER NOT NULL UNIQUE,
    image        BLOB,
    blocked      INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL DEFAULT 0,
    byte_size    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_thumbnails_updated ON thumbnails(last_updated);
`
