package sync

// Event is a tagged variant describing one observable step of a sync
// pass. Events are delivered synchronously to the consumer function
// injected into the Engine; a nil consumer discards them.
type Event interface {
	syncEvent()
}

// AccountSynced reports a completed per-account pass.
type AccountSynced struct {
	UserID   string
	Ingested int
}

// AccountFailed reports an account whose pass was abandoned. During a
// bulk pass the failure is isolated: remaining accounts still run.
type AccountFailed struct {
	UserID string
	Err    error
}

// MailboxSynced reports a completed mailbox within an account pass.
type MailboxSynced struct {
	UserID   string
	Mailbox  string
	Ingested int
}

// MessageSkipped reports a single message left unstored (unparseable
// bytes or a persistence failure) while the mailbox pass continued.
type MessageSkipped struct {
	UserID  string
	Mailbox string
	UID     uint32
	Err     error
}

func (AccountSynced) syncEvent()  {}
func (AccountFailed) syncEvent()  {}
func (MailboxSynced) syncEvent()  {}
func (MessageSkipped) syncEvent() {}
