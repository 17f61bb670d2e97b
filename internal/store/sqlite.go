package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dispatchware/mailsync/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys so attachment rows cascade with their message.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// Accounts returns every configured account, ordered by user id.
func (s *SQLiteStore) Accounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT * FROM accounts ORDER BY user_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	return accounts, nil
}

// AccountByUserID returns the single account owned by userID.
func (s *SQLiteStore) AccountByUserID(
	ctx context.Context,
	userID string,
) (*model.Account, error) {
	var account model.Account
	err := s.db.GetContext(ctx, &account,
		"SELECT * FROM accounts WHERE user_id = ?", userID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account for user %s: %w", userID, ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying account for user %s: %w", userID, err)
	}
	return &account, nil
}

// UpsertAccount inserts or replaces an account's credential set.
// If the account has no ID, a new UUID is generated.
func (s *SQLiteStore) UpsertAccount(
	ctx context.Context,
	account model.Account,
) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, user_id, username, password_ciphertext, password_nonce, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username            = excluded.username,
			password_ciphertext = excluded.password_ciphertext,
			password_nonce      = excluded.password_nonce,
			updated_at          = excluded.updated_at`,
		account.ID, account.UserID, account.Username,
		account.PasswordCiphertext, account.PasswordNonce,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting account for user %s: %w", account.UserID, err)
	}

	return nil
}

// RotatePassword replaces an account's ciphertext and nonce in one
// statement so the pair can never be observed half-swapped.
func (s *SQLiteStore) RotatePassword(
	ctx context.Context,
	userID string,
	ciphertext, nonce []byte,
) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET password_ciphertext = ?, password_nonce = ?, updated_at = ?
		WHERE user_id = ?`,
		ciphertext, nonce, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("rotating password for user %s: %w", userID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotating password for user %s: %w", userID, err)
	}
	if affected == 0 {
		return fmt.Errorf("rotating password for user %s: %w", userID, ErrAccountNotFound)
	}

	return nil
}

// ExistingUIDs projects the UIDs of every message already mirrored for
// (userID, mailbox), in ascending order.
func (s *SQLiteStore) ExistingUIDs(
	ctx context.Context,
	userID, mailbox string,
) ([]uint32, error) {
	var uids []uint32
	err := s.db.SelectContext(ctx, &uids,
		"SELECT uid FROM messages WHERE user_id = ? AND mailbox = ? ORDER BY uid",
		userID, mailbox,
	)
	if err != nil {
		return nil, fmt.Errorf("querying existing uids for %s/%s: %w", userID, mailbox, err)
	}
	return uids, nil
}

// InsertMessage stores one mirrored message. INSERT OR IGNORE leaves
// the unique (user, mailbox, uid) index to decide races: when the row
// already exists nothing is written and ErrDuplicateMessage is returned.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg model.Message) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (
			id, user_id, mailbox, uid,
			sender, recipient, subject, sent_at,
			text_body, html_body, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.Mailbox, msg.UID,
		msg.Sender, msg.Recipient, msg.Subject, msg.SentAt.UTC(),
		msg.TextBody, msg.HTMLBody, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting message %s/%s/%d: %w", msg.UserID, msg.Mailbox, msg.UID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("inserting message %s/%s/%d: %w", msg.UserID, msg.Mailbox, msg.UID, err)
	}
	if affected == 0 {
		return fmt.Errorf("message %s/%s/%d: %w", msg.UserID, msg.Mailbox, msg.UID, ErrDuplicateMessage)
	}

	return nil
}

// InsertAttachment records an attachment reference row.
func (s *SQLiteStore) InsertAttachment(ctx context.Context, att model.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (
			id, message_id, filename, content_type, storage_path, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		att.ID, att.MessageID, att.Filename, att.ContentType,
		att.StoragePath, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting attachment %s for message %s: %w", att.Filename, att.MessageID, err)
	}

	return nil
}

// AttachmentsForMessage returns the attachment rows recorded for one
// message, ordered by creation. Used by the read side and by tests.
func (s *SQLiteStore) AttachmentsForMessage(
	ctx context.Context,
	messageID string,
) ([]model.Attachment, error) {
	var attachments []model.Attachment
	err := s.db.SelectContext(ctx, &attachments,
		"SELECT * FROM attachments WHERE message_id = ? ORDER BY created_at, id",
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying attachments for message %s: %w", messageID, err)
	}
	return attachments, nil
}

// MessageCount reports how many messages are mirrored for a user.
func (s *SQLiteStore) MessageCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM messages WHERE user_id = ?", userID,
	)
	if err != nil {
		return 0, fmt.Errorf("counting messages for user %s: %w", userID, err)
	}
	return count, nil
}
