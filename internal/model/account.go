package model

import "time"

// Account holds one user's mailbox credentials. The password is stored
// as AES-GCM ciphertext alongside its nonce and is never kept in
// plaintext; rotating a password replaces both columns in one statement.
//
// The IMAP host, port and TLS mode are engine-wide configuration, so an
// account carries only the username used to log in.
type Account struct {
	ID                 string    `db:"id"`
	UserID             string    `db:"user_id"`
	Username           string    `db:"username"`
	PasswordCiphertext []byte    `db:"password_ciphertext"`
	PasswordNonce      []byte    `db:"password_nonce"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}
