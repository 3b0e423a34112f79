package sqlite

// schemaSQL is the authoritative schema. Tests load it through Open.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS fingerprints (
	digest     BLOB    PRIMARY KEY,
	owner      TEXT    NOT NULL,
	note       TEXT    NOT NULL DEFAULT '',
	created_ns INTEGER NOT NULL,
	nonce      BLOB    NOT NULL,
	record_ref TEXT    NOT NULL UNIQUE
) WITHOUT ROWID;
`
