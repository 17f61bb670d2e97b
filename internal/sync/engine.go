// Package sync implements the mailbox synchronization engine: it walks
// every configured account (or a single one on demand), diffs server
// UIDs against the mirrored state, and ingests the messages not yet
// stored. Failures are isolated per account in bulk mode and per
// message within a mailbox.
package sync

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dispatchware/mailsync/internal/blob"
	"github.com/dispatchware/mailsync/internal/imapx"
	"github.com/dispatchware/mailsync/internal/ingest"
	"github.com/dispatchware/mailsync/internal/model"
	"github.com/dispatchware/mailsync/internal/store"
	"github.com/dispatchware/mailsync/internal/vault"
)

// Session is the connection surface the engine drives. *imapx.Session
// implements it; tests substitute fakes.
type Session interface {
	Mailboxes() ([]imapx.MailboxInfo, error)
	Open(path string) error
	UIDs() ([]uint32, error)
	Fetch(uid uint32) ([]byte, error)
	Close() error
}

// Dialer opens an authenticated session for one account's credentials.
// The context carries the per-account deadline; implementations must
// honor it for the dial and bound later session I/O with it.
type Dialer interface {
	Dial(ctx context.Context, username, password string) (Session, error)
}

// ServerDialer dials the configured mail server with imapx.
type ServerDialer struct {
	Config imapx.ServerConfig
}

func (d ServerDialer) Dial(ctx context.Context, username, password string) (Session, error) {
	return imapx.Dial(ctx, d.Config, username, password)
}

// Options tunes an Engine.
type Options struct {
	// AccountTimeout bounds one account's wall-clock time so a stalled
	// mail server cannot hold up a bulk pass indefinitely. The deadline
	// reaches the connection itself through the Dialer, so it fires even
	// while a command is blocked on the socket. Zero means no deadline.
	AccountTimeout time.Duration

	// Workers bounds concurrent account passes during a bulk sync.
	// Accounts share no mutable state, so values above 1 are safe;
	// zero or one processes accounts sequentially.
	Workers int

	// Notify receives sync events. May be nil.
	Notify func(Event)
}

// Engine orchestrates sync passes over the vault, IMAP sessions, the
// message store, and blob storage.
type Engine struct {
	store          store.Store
	blobs          blob.Store
	vault          *vault.Vault
	dialer         Dialer
	registry       *imapx.Registry
	log            zerolog.Logger
	notify         func(Event)
	accountTimeout time.Duration
	workers        int
}

// NewEngine wires an Engine from its collaborators.
func NewEngine(
	st store.Store,
	blobs blob.Store,
	v *vault.Vault,
	dialer Dialer,
	logger zerolog.Logger,
	opts Options,
) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	return &Engine{
		store:          st,
		blobs:          blobs,
		vault:          v,
		dialer:         dialer,
		registry:       imapx.NewRegistry(),
		log:            logger,
		notify:         opts.Notify,
		accountTimeout: opts.AccountTimeout,
		workers:        workers,
	}
}

// Close releases any connections still registered, for shutdown paths.
func (e *Engine) Close() error {
	return e.registry.CloseAll()
}

// SyncAll runs the per-account algorithm for every configured account.
// A failing account is logged with its user id and skipped; the pass
// never aborts early because of one account. Returns the count of
// newly ingested messages across all accounts that succeeded.
func (e *Engine) SyncAll(ctx context.Context) (int, error) {
	accounts, err := e.store.Accounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading accounts: %w", err)
	}

	var total atomic.Int64

	grp := new(errgroup.Group)
	grp.SetLimit(e.workers)

	for _, account := range accounts {
		grp.Go(func() error {
			n, err := e.syncAccount(ctx, account)
			if err != nil {
				// A failed account's partial ingests stay persisted but
				// are left out of the aggregate, which reports only
				// accounts that completed.
				e.log.Error().Err(err).Str("user_id", account.UserID).Msg("account sync failed")
				e.emit(AccountFailed{UserID: account.UserID, Err: err})
				return nil
			}
			total.Add(int64(n))
			return nil
		})
	}

	_ = grp.Wait()
	return int(total.Load()), nil
}

// SyncAccount runs the per-account algorithm for one user. Unlike the
// bulk pass, the failure is surfaced to the caller.
func (e *Engine) SyncAccount(ctx context.Context, userID string) (int, error) {
	account, err := e.store.AccountByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}

	n, err := e.syncAccount(ctx, *account)
	if err != nil {
		e.log.Error().Err(err).Str("user_id", userID).Msg("account sync failed")
		e.emit(AccountFailed{UserID: userID, Err: err})
		return n, err
	}
	return n, nil
}

// syncAccount decrypts the credentials, opens one session, and walks
// every selectable mailbox. The session is released on every exit path
// through the connection registry.
func (e *Engine) syncAccount(ctx context.Context, account model.Account) (int, error) {
	if e.accountTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.accountTimeout)
		defer cancel()
	}

	password, err := e.vault.Decrypt(account.PasswordCiphertext, account.PasswordNonce)
	if err != nil {
		return 0, err
	}

	session, err := e.dialer.Dial(ctx, account.Username, password)
	if err != nil {
		return 0, err
	}

	if err := e.registry.Open(account.ID, session); err != nil {
		_ = session.Close()
		return 0, fmt.Errorf("account %s: %w", account.UserID, err)
	}
	defer func() {
		if err := e.registry.Close(account.ID); err != nil {
			e.log.Warn().Err(err).Str("user_id", account.UserID).Msg("closing session")
		}
	}()

	mailboxes, err := session.Mailboxes()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, mb := range mailboxes {
		if !mb.Selectable {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := e.syncMailbox(ctx, session, account, mb.Path)
		total += n
		if err != nil {
			// One unopenable or half-synced mailbox does not abandon
			// the account's remaining mailboxes.
			e.log.Warn().Err(err).
				Str("user_id", account.UserID).
				Str("mailbox", mb.Path).
				Msg("mailbox sync failed")
			continue
		}

		e.emit(MailboxSynced{UserID: account.UserID, Mailbox: mb.Path, Ingested: n})
	}

	e.emit(AccountSynced{UserID: account.UserID, Ingested: total})
	return total, nil
}

// syncMailbox opens one mailbox, diffs server UIDs against the store,
// and ingests each new message in ascending UID order.
func (e *Engine) syncMailbox(
	ctx context.Context,
	session Session,
	account model.Account,
	mailbox string,
) (int, error) {
	if err := session.Open(mailbox); err != nil {
		return 0, err
	}

	serverUIDs, err := session.UIDs()
	if err != nil {
		return 0, err
	}

	existing, err := e.store.ExistingUIDs(ctx, account.UserID, mailbox)
	if err != nil {
		return 0, err
	}

	ingested := 0
	for _, uid := range diffUIDs(serverUIDs, existing) {
		if err := ctx.Err(); err != nil {
			return ingested, err
		}

		stored, err := e.ingestMessage(ctx, session, account, mailbox, uid)
		if err != nil {
			return ingested, err
		}
		if stored {
			ingested++
		}
	}

	return ingested, nil
}

// ingestMessage fetches, parses, and persists one message with its
// attachments. Unparseable bytes and persistence failures skip just
// this message (stored=false, nil error); only fetch failures, which
// indicate a broken connection, propagate.
func (e *Engine) ingestMessage(
	ctx context.Context,
	session Session,
	account model.Account,
	mailbox string,
	uid uint32,
) (stored bool, err error) {
	raw, err := session.Fetch(uid)
	if err != nil {
		return false, fmt.Errorf("fetching uid %d: %w", uid, err)
	}

	parsed, err := ingest.Parse(raw)
	if err != nil {
		e.skipMessage(account, mailbox, uid, err)
		return false, nil
	}

	msg := model.Message{
		ID:        uuid.New().String(),
		UserID:    account.UserID,
		Mailbox:   mailbox,
		UID:       uid,
		Sender:    parsed.From,
		Recipient: parsed.To,
		Subject:   parsed.Subject,
		SentAt:    parsed.SentAt,
		TextBody:  parsed.TextBody,
		HTMLBody:  parsed.HTMLBody,
	}

	if err := e.store.InsertMessage(ctx, msg); err != nil {
		e.skipMessage(account, mailbox, uid, err)
		return false, nil
	}

	for i, att := range parsed.Attachments {
		// A failed attachment leaves the message row and its siblings
		// intact; the degraded state is recoverable by a re-fetch.
		if err := e.writeAttachment(ctx, account, uid, msg.ID, i, att); err != nil {
			e.log.Warn().Err(err).
				Str("user_id", account.UserID).
				Str("mailbox", mailbox).
				Uint32("uid", uid).
				Str("filename", att.Filename).
				Msg("attachment write failed")
		}
	}

	return true, nil
}

// writeAttachment uploads one payload and records its reference row.
func (e *Engine) writeAttachment(
	ctx context.Context,
	account model.Account,
	uid uint32,
	messageID string,
	index int,
	att ingest.Attachment,
) error {
	filename := att.Filename
	if filename == "" {
		filename = fmt.Sprintf("attachment-%d", index+1)
	}

	key := fmt.Sprintf("%s/%d/%s", account.UserID, uid, filename)
	location, err := e.blobs.Put(ctx, key, att.Data)
	if err != nil {
		return fmt.Errorf("uploading attachment %s: %w", key, err)
	}

	err = e.store.InsertAttachment(ctx, model.Attachment{
		ID:          uuid.New().String(),
		MessageID:   messageID,
		Filename:    filename,
		ContentType: att.ContentType,
		StoragePath: location,
	})
	if err != nil {
		return fmt.Errorf("recording attachment %s: %w", key, err)
	}

	return nil
}

func (e *Engine) skipMessage(account model.Account, mailbox string, uid uint32, err error) {
	e.log.Warn().Err(err).
		Str("user_id", account.UserID).
		Str("mailbox", mailbox).
		Uint32("uid", uid).
		Msg("message skipped")
	e.emit(MessageSkipped{UserID: account.UserID, Mailbox: mailbox, UID: uid, Err: err})
}

func (e *Engine) emit(event Event) {
	if e.notify != nil {
		e.notify(event)
	}
}
