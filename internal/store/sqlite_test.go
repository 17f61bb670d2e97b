package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dispatchware/mailsync/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

func testMessage(userID, mailbox string, uid uint32) model.Message {
	sender := `"Ada Lovelace" <ada@example.com>`
	return model.Message{
		ID:       uuid.New().String(),
		UserID:   userID,
		Mailbox:  mailbox,
		UID:      uid,
		Sender:   &sender,
		Subject:  "hello",
		SentAt:   time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		TextBody: "body",
	}
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	account := model.Account{
		UserID:             "user-1",
		Username:           "dispatch@example.com",
		PasswordCiphertext: []byte{0x01, 0x02},
		PasswordNonce:      []byte{0x03, 0x04},
	}
	if err := s.UpsertAccount(ctx, account); err != nil {
		t.Fatalf("upserting account: %v", err)
	}

	got, err := s.AccountByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("getting account: %v", err)
	}
	if got.Username != "dispatch@example.com" {
		t.Errorf("Username = %q", got.Username)
	}
	if got.ID == "" {
		t.Error("expected a generated account id")
	}

	accounts, err := s.Accounts(ctx)
	if err != nil {
		t.Fatalf("listing accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("got %d accounts, want 1", len(accounts))
	}
}

func TestAccountByUserIDNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.AccountByUserID(context.Background(), "nobody")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("got %v, want ErrAccountNotFound", err)
	}
}

func TestRotatePassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertAccount(ctx, model.Account{
		UserID:             "user-1",
		Username:           "dispatch@example.com",
		PasswordCiphertext: []byte{0x01},
		PasswordNonce:      []byte{0x02},
	}); err != nil {
		t.Fatalf("upserting account: %v", err)
	}

	if err := s.RotatePassword(ctx, "user-1", []byte{0xAA}, []byte{0xBB}); err != nil {
		t.Fatalf("rotating password: %v", err)
	}

	got, err := s.AccountByUserID(ctx, "user-1")
	if err != nil {
		t.Fatalf("getting account: %v", err)
	}
	if got.PasswordCiphertext[0] != 0xAA || got.PasswordNonce[0] != 0xBB {
		t.Error("ciphertext and nonce were not both replaced")
	}

	if err := s.RotatePassword(ctx, "nobody", []byte{0x01}, []byte{0x02}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("rotating unknown account: got %v, want ErrAccountNotFound", err)
	}
}

func TestInsertMessageDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.InsertMessage(ctx, testMessage("user-1", "INBOX", 42)); err != nil {
		t.Fatalf("inserting message: %v", err)
	}

	// Same (user, mailbox, uid) triple, as raced by a concurrent pass.
	err := s.InsertMessage(ctx, testMessage("user-1", "INBOX", 42))
	if !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("got %v, want ErrDuplicateMessage", err)
	}

	count, err := s.MessageCount(ctx, "user-1")
	if err != nil {
		t.Fatalf("counting messages: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows, want exactly 1", count)
	}

	// A different mailbox or uid is a different message.
	if err := s.InsertMessage(ctx, testMessage("user-1", "Sent", 42)); err != nil {
		t.Errorf("inserting same uid in another mailbox: %v", err)
	}
	if err := s.InsertMessage(ctx, testMessage("user-1", "INBOX", 43)); err != nil {
		t.Errorf("inserting next uid: %v", err)
	}
}

func TestExistingUIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, uid := range []uint32{5, 1, 3} {
		if err := s.InsertMessage(ctx, testMessage("user-1", "INBOX", uid)); err != nil {
			t.Fatalf("inserting message %d: %v", uid, err)
		}
	}
	if err := s.InsertMessage(ctx, testMessage("user-2", "INBOX", 9)); err != nil {
		t.Fatalf("inserting message for other user: %v", err)
	}

	uids, err := s.ExistingUIDs(ctx, "user-1", "INBOX")
	if err != nil {
		t.Fatalf("querying existing uids: %v", err)
	}

	want := []uint32{1, 3, 5}
	if len(uids) != len(want) {
		t.Fatalf("got %v, want %v", uids, want)
	}
	for i := range want {
		if uids[i] != want[i] {
			t.Fatalf("got %v, want %v", uids, want)
		}
	}

	empty, err := s.ExistingUIDs(ctx, "user-1", "Archive")
	if err != nil {
		t.Fatalf("querying empty mailbox: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %v for a mailbox with no messages", empty)
	}
}

func TestAttachmentLinkage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := testMessage("user-1", "INBOX", 7)
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("inserting message: %v", err)
	}

	for _, name := range []string{"rate-con.pdf", "stops.csv"} {
		err := s.InsertAttachment(ctx, model.Attachment{
			MessageID:   msg.ID,
			Filename:    name,
			ContentType: "application/octet-stream",
			StoragePath: "user-1/7/" + name,
		})
		if err != nil {
			t.Fatalf("inserting attachment %s: %v", name, err)
		}
	}

	attachments, err := s.AttachmentsForMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("querying attachments: %v", err)
	}
	if len(attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(attachments))
	}
	for _, att := range attachments {
		if att.MessageID != msg.ID {
			t.Errorf("attachment %s references %s, want %s", att.Filename, att.MessageID, msg.ID)
		}
	}
}

func TestAttachmentRequiresMessage(t *testing.T) {
	s := newTestStore(t)

	err := s.InsertAttachment(context.Background(), model.Attachment{
		MessageID:   "no-such-message",
		Filename:    "orphan.bin",
		StoragePath: "x/0/orphan.bin",
	})
	if err == nil {
		t.Fatal("expected foreign key violation for an orphan attachment")
	}
}
