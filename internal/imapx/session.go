// Package imapx wraps go-imap v2 with the small read-only surface the
// sync engine needs: connect, list mailboxes, enumerate UIDs, fetch raw
// message bytes, and close. No flags are set and nothing is deleted or
// moved on the server.
package imapx

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// ServerConfig holds the connection parameters shared by every
// account: one mail server host, port, and TLS mode.
type ServerConfig struct {
	Host string
	Port string
	TLS  bool
}

// Addr returns the dial address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// ConnectionError indicates the mail server could not be reached or
// refused the account's credentials. Fatal to that one account only.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to IMAP %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MailboxError indicates one mailbox could not be opened while the
// connection itself is healthy.
type MailboxError struct {
	Mailbox string
	Err     error
}

func (e *MailboxError) Error() string {
	return fmt.Sprintf("opening mailbox %q: %v", e.Mailbox, e.Err)
}

func (e *MailboxError) Unwrap() error { return e.Err }

// MailboxInfo describes one mailbox on the server. Non-selectable
// entries are pure container nodes and must be skipped by callers.
type MailboxInfo struct {
	Path       string
	Selectable bool
}

// Session is one authenticated connection to an IMAP server. It is
// owned by a single sync task; the underlying connection does not
// support concurrent open-mailbox contexts.
type Session struct {
	client *imapclient.Client
}

// Dial establishes an encrypted connection (implicit TLS or STARTTLS
// per config) and authenticates. The context bounds the dial, and its
// deadline, when present, is pinned on the connection so every later
// read and write errors out once it passes; an unresponsive server
// cannot park a sync pass in a socket read forever. The caller must
// Close the returned session on every exit path.
func Dial(ctx context.Context, cfg ServerConfig, username, password string) (*Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return nil, &ConnectionError{Addr: cfg.Addr(), Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, &ConnectionError{Addr: cfg.Addr(), Err: err}
		}
	}

	var client *imapclient.Client
	if cfg.TLS {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: cfg.Host})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, &ConnectionError{Addr: cfg.Addr(), Err: err}
		}
		client = imapclient.New(tlsConn, nil)
	} else {
		client, err = imapclient.NewStartTLS(conn, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: cfg.Host},
		})
		if err != nil {
			conn.Close()
			return nil, &ConnectionError{Addr: cfg.Addr(), Err: err}
		}
	}

	if err := client.Login(username, password).Wait(); err != nil {
		_ = client.Close()
		return nil, &ConnectionError{
			Addr: cfg.Addr(),
			Err:  fmt.Errorf("authentication failed for %s: %w", username, err),
		}
	}

	return &Session{client: client}, nil
}

// Mailboxes lists every mailbox on the server in the order the server
// returns them, with its selectability flag.
func (s *Session) Mailboxes() ([]MailboxInfo, error) {
	listCmd := s.client.List("", "*", nil)

	data, err := listCmd.Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	infos := make([]MailboxInfo, 0, len(data))
	for _, mb := range data {
		infos = append(infos, MailboxInfo{
			Path:       mb.Mailbox,
			Selectable: !hasAttr(mb.Attrs, imap.MailboxAttrNoSelect),
		})
	}

	return infos, nil
}

// Open selects a mailbox for subsequent UID and fetch operations.
func (s *Session) Open(path string) error {
	if _, err := s.client.Select(path, nil).Wait(); err != nil {
		return &MailboxError{Mailbox: path, Err: err}
	}
	return nil
}

// UIDs returns every server-assigned UID in the currently open mailbox.
func (s *Session) UIDs() ([]uint32, error) {
	searchData, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching message uids: %w", err)
	}

	all := searchData.AllUIDs()
	uids := make([]uint32, 0, len(all))
	for _, uid := range all {
		uids = append(uids, uint32(uid))
	}

	return uids, nil
}

// Fetch retrieves the full raw bytes of one message. BODY.PEEK keeps
// the fetch from setting the \Seen flag.
func (s *Session) Fetch(uid uint32) ([]byte, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message uid %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message uid %d: %w", uid, err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message uid %d has no body section", uid)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message uid %d: %w", uid, err)
	}

	return raw, nil
}

// Close logs out and terminates the connection.
func (s *Session) Close() error {
	return s.client.Logout().Wait()
}

func hasAttr(attrs []imap.MailboxAttr, target imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == target {
			return true
		}
	}
	return false
}
