package bounce

// DeliveryStatus is the parsed content of a message/delivery-status part, as
// defined by RFC 3464. Only the fields the reconciler's events need are
// surfaced; anything else in the per-recipient block is dropped.
type DeliveryStatus struct {
	FinalRecipient     string
	OriginalRecipient  string
	Action             string
	Status             string
	DiagnosticCodeType string // text before the first ';', e.g. "smtp"
	DiagnosticCode     string // text after the first ';', trimmed
	RemoteMTA          string
	ReportingMTA       string
	ReceivedFromMTA    string
	ArrivalDate        string
	OriginalMessageID  string
	Postfix            map[string]string // X-Postfix-* fields, keyed without the prefix
}

func (d *DeliveryStatus) isEmpty() bool {
	if d == nil {
		return true
	}
	return d.FinalRecipient == "" && d.OriginalRecipient == "" && d.Action == "" &&
		d.Status == "" && d.DiagnosticCode == "" && d.RemoteMTA == "" &&
		d.ReportingMTA == "" && d.ReceivedFromMTA == "" && d.ArrivalDate == "" &&
		d.OriginalMessageID == "" && len(d.Postfix) == 0
}

// FeedbackReport is the parsed content of a message/feedback-report part, as
// defined by RFC 5965.
type FeedbackReport struct {
	Fields map[string]string
}

func (f *FeedbackReport) isEmpty() bool {
	return f == nil || len(f.Fields) == 0
}

// OriginalHeaders is the header set of the embedded original message, pulled
// from a message/rfc822 or message/rfc822-headers part (or, for providers
// like Amazon WorkMail that don't emit a proper sub-message part, split out
// of a "technical report:" marker in a plain-text part).
type OriginalHeaders struct {
	Raw    string
	Fields map[string][]string
}

func (o *OriginalHeaders) isEmpty() bool {
	return o == nil || o.Raw == ""
}

// Report is the result of extracting bounce/feedback evidence from a full
// RFC 822 message. Any section with no matching part in the message is left
// nil.
type Report struct {
	DeliveryStatus  *DeliveryStatus
	FeedbackReport  *FeedbackReport
	OriginalHeaders *OriginalHeaders
}
