package store

import (
	"context"
	"errors"

	"github.com/dispatchware/mailsync/internal/model"
)

// ErrDuplicateMessage is returned by InsertMessage when a row with the
// same (user, mailbox, uid) triple already exists. The unique index is
// the safety net against two concurrent passes racing on one account;
// exactly one row survives.
var ErrDuplicateMessage = errors.New("message already stored")

// ErrAccountNotFound is returned when no account exists for a user id.
var ErrAccountNotFound = errors.New("account not found")

// Store defines the persistence interface for accounts, mirrored
// messages, and attachment references.
type Store interface {
	// Accounts returns every configured account, ordered by user id.
	Accounts(ctx context.Context) ([]model.Account, error)

	// AccountByUserID returns the single account owned by userID, or
	// ErrAccountNotFound.
	AccountByUserID(ctx context.Context, userID string) (*model.Account, error)

	// UpsertAccount inserts or replaces an account's credential set.
	// A missing ID is generated.
	UpsertAccount(ctx context.Context, account model.Account) error

	// RotatePassword replaces an account's ciphertext and nonce in a
	// single statement so the pair is swapped atomically.
	RotatePassword(ctx context.Context, userID string, ciphertext, nonce []byte) error

	// ExistingUIDs returns the server-assigned UIDs of every message
	// already mirrored for (userID, mailbox). Recomputed each pass;
	// there is no separate cursor record.
	ExistingUIDs(ctx context.Context, userID, mailbox string) ([]uint32, error)

	// InsertMessage stores one mirrored message exactly once.
	InsertMessage(ctx context.Context, msg model.Message) error

	// InsertAttachment records an attachment reference for an already
	// stored message.
	InsertAttachment(ctx context.Context, att model.Attachment) error
}
