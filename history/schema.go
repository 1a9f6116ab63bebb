package history

// Schema is the DDL of the history table. AUTOINCREMENT guarantees ids are
// never reused, even after Clear.
const Schema = `
CREATE TABLE IF NOT EXISTS history (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    operation  TEXT NOT NULL,
    matrix_a   TEXT NOT NULL,
    matrix_b   TEXT NOT NULL,
    result     TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`
