package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS accounts (
	id                  TEXT PRIMARY KEY,
	user_id             TEXT NOT NULL UNIQUE,
	username            TEXT NOT NULL,
	password_ciphertext BLOB NOT NULL,
	password_nonce      BLOB NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	mailbox    TEXT NOT NULL,
	uid        INTEGER NOT NULL,
	sender     TEXT,
	recipient  TEXT,
	subject    TEXT NOT NULL DEFAULT '',
	sent_at    DATETIME NOT NULL,
	text_body  TEXT NOT NULL DEFAULT '',
	html_body  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, mailbox, uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_mailbox ON messages(user_id, mailbox);

CREATE TABLE IF NOT EXISTS attachments (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	storage_path TEXT NOT NULL,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attachments_message_id ON attachments(message_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
