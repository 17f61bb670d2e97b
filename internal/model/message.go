package model

import "time"

// Message is one mirrored mail item. Its sync identity is the
// (UserID, Mailbox, UID) triple, which is unique in the store. A
// message is written exactly once when first observed and never
// mutated or deleted by the sync engine.
type Message struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Mailbox   string    `db:"mailbox"`
	UID       uint32    `db:"uid"`
	Sender    *string   `db:"sender"`
	Recipient *string   `db:"recipient"`
	Subject   string    `db:"subject"`
	SentAt    time.Time `db:"sent_at"`
	TextBody  string    `db:"text_body"`
	HTMLBody  string    `db:"html_body"`
	CreatedAt time.Time `db:"created_at"`
}

// Attachment is a binary payload belonging to a Message. The payload
// bytes live in blob storage; StoragePath is the blob key. Attachment
// rows are only created after their owning message row exists.
type Attachment struct {
	ID          string    `db:"id"`
	MessageID   string    `db:"message_id"`
	Filename    string    `db:"filename"`
	ContentType string    `db:"content_type"`
	StoragePath string    `db:"storage_path"`
	CreatedAt   time.Time `db:"created_at"`
}
