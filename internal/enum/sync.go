package enum

// MailerType selects which reconciler and executor backend an account uses.
type MailerType string

const (
	MailerImapSmtp MailerType = "imap_smtp"
	MailerGmailApi MailerType = "gmail_api"
	MailerGraphApi MailerType = "graph_api"
)

func (t MailerType) String() string {
	return string(t)
}

// SyncType is the outcome of the scheduler's per-tick sync-kind decision.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
	SyncSkip        SyncType = "skip"
)

func (t SyncType) String() string {
	return string(t)
}

// HeaderValue tags how a header or body value should be interpreted when
// rendered by an external consumer of an emitted event.
type HeaderValue string

const (
	HeaderValueRaw  HeaderValue = "raw"
	HeaderValueText HeaderValue = "text"
	HeaderValueURL  HeaderValue = "url"
)

func (t HeaderValue) String() string {
	return string(t)
}

// MessageSearch distinguishes a single search condition from a boolean
// combination of conditions in a subscription filter.
type MessageSearch string

const (
	MessageSearchCondition MessageSearch = "condition"
	MessageSearchLogic     MessageSearch = "logic"
)

func (t MessageSearch) String() string {
	return string(t)
}

// RetryPolicy selects the backoff curve for a failed outgoing task.
type RetryPolicy string

const (
	RetryLinear      RetryPolicy = "linear"
	RetryExponential RetryPolicy = "exponential"
)

func (t RetryPolicy) String() string {
	return string(t)
}

// EventType enumerates the semantic events the core emits to the external
// hook channel.
type EventType string

const (
	EventEmailAddedToFolder        EventType = "EmailAddedToFolder"
	EventEmailFlagsChanged         EventType = "EmailFlagsChanged"
	EventEmailBounce               EventType = "EmailBounce"
	EventEmailFeedBackReport       EventType = "EmailFeedBackReport"
	EventMailboxCreation           EventType = "MailboxCreation"
	EventMailboxDeletion           EventType = "MailboxDeletion"
	EventUIDValidityChange         EventType = "UIDValidityChange"
	EventAccountFirstSyncCompleted EventType = "AccountFirstSyncCompleted"
	EventEmailSentSuccess          EventType = "EmailSentSuccess"
	EventEmailSendingError         EventType = "EmailSendingError"
	EventEmailOpened               EventType = "EmailOpened"
	EventEmailLinkClicked          EventType = "EmailLinkClicked"
)

func (t EventType) String() string {
	return string(t)
}
