package outlooksync

import (
	"net/mail"
	"strconv"
	"strings"

	goimap "github.com/emersion/go-imap"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/mailforge/mailforge/internal/models"
)

// buildEnvelope converts a Graph message into a rich envelope row. Flags are
// derived from IsRead/Flag rather than a native IMAP-style flag set, the
// Outlook analogue of the Gmail reconciler's label-derived flags.
func buildEnvelope(accountID, folderID string, msg graphmodels.Messageable) *models.Envelope {
	header := graphHeaderMap(msg)

	env := &models.Envelope{
		AccountID:      accountID,
		FolderID:       folderID,
		UIDOrMessageID: stringValue(msg.GetId()),
		Flags:          flagsFromMessage(msg),
	}
	env.FlagsHash = models.FlagsHash(env.Flags)

	if rcvd := msg.GetReceivedDateTime(); rcvd != nil {
		env.InternalDateMs = rcvd.UnixMilli()
		env.DateMs = rcvd.UnixMilli()
	}

	env.Subject = stringValue(msg.GetSubject())
	env.MessageID = strings.Trim(stringValue(msg.GetInternetMessageId()), "<>")
	env.InReplyTo = strings.Trim(header.get("In-Reply-To"), "<>")
	if refs := header.get("References"); refs != "" {
		for _, ref := range strings.Fields(refs) {
			env.References = append(env.References, strings.Trim(ref, "<>"))
		}
	}

	if from := msg.GetFrom(); from != nil {
		if addr := graphAddress(from); addr != "" {
			env.FromAddresses = []string{addr}
		}
	}
	env.ToAddresses = graphAddressesOrHeader(msg.GetToRecipients(), header.get("To"))
	env.CcAddresses = graphAddressesOrHeader(msg.GetCcRecipients(), header.get("Cc"))
	env.BccAddresses = graphAddressesOrHeader(msg.GetBccRecipients(), header.get("Bcc"))
	if replyTo := graphAddresses(msg.GetReplyTo()); len(replyTo) > 0 {
		env.ReplyToAddresses = replyTo
	}

	// The Thread table's rollup key is always the header-based function,
	// computed independently by EnvelopeRepository.SaveEnvelopes; setting it
	// here with Graph's own ConversationId would just disagree with it.
	env.ThreadID = models.ThreadIDFor(env.References, env.MessageID)

	return env
}

// flagsFromMessage maps Graph's IsRead/Flag properties onto
// the same flag vocabulary the IMAP reconciler stores, so downstream
// consumers see one consistent flag set regardless of provider.
func flagsFromMessage(msg graphmodels.Messageable) []string {
	var flags []string
	if isRead := msg.GetIsRead(); isRead != nil && *isRead {
		flags = append(flags, goimap.SeenFlag)
	}
	if flag := msg.GetFlag(); flag != nil {
		if status := flag.GetFlagStatus(); status != nil && *status == graphmodels.FLAGGED_FOLLOWUPFLAGSTATUS {
			flags = append(flags, goimap.FlaggedFlag)
		}
	}
	return flags
}

type graphHeaderLookup map[string]string

func (h graphHeaderLookup) get(name string) string {
	return h[strings.ToLower(name)]
}

// graphHeaderMap indexes a message's raw internet headers, Graph's
// equivalent of the Gmail reconciler's headerMap over a payload's header
// list — used only for the handful of headers (In-Reply-To, References)
// Graph doesn't model as first-class Message properties.
func graphHeaderMap(msg graphmodels.Messageable) graphHeaderLookup {
	out := make(graphHeaderLookup)
	headers := msg.GetInternetMessageHeaders()
	for _, h := range headers {
		name := h.GetName()
		value := h.GetValue()
		if name == nil || value == nil {
			continue
		}
		out[strings.ToLower(*name)] = *value
	}
	return out
}

// graphAddress extracts one recipient's address, or "" if either the
// recipient or its nested EmailAddress accessor is absent.
func graphAddress(r graphmodels.Recipientable) string {
	if r == nil {
		return ""
	}
	addr := r.GetEmailAddress()
	if addr == nil {
		return ""
	}
	return stringValue(addr.GetAddress())
}

// graphAddresses extracts every address out of a recipient list, the
// Outlook analogue of the Gmail reconciler's parseAddressList and the IMAP
// reconciler's convertAddresses.
func graphAddresses(recipients []graphmodels.Recipientable) []string {
	var out []string
	for _, r := range recipients {
		if addr := graphAddress(r); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// graphAddressesOrHeader prefers Graph's structured recipient list and
// falls back to parsing the raw header only when Graph reported no
// recipients at all — seen on some malformed inbound mail Graph still
// accepts into the mailbox without populating the structured field.
func graphAddressesOrHeader(recipients []graphmodels.Recipientable, rawHeader string) []string {
	if addrs := graphAddresses(recipients); len(addrs) > 0 {
		return addrs
	}
	return parseAddressHeader(rawHeader)
}

// parseAddressHeader parses a raw RFC 5322 address-list header value.
func parseAddressHeader(raw string) []string {
	if raw == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

// collectAttachments converts a fetched attachment list into
// AttachmentDescriptor rows, addressed by list index since Graph attachments
// have no part-path addressing the way a MIME tree does.
func collectAttachments(attachments []graphmodels.Attachmentable) []models.AttachmentDescriptor {
	var out []models.AttachmentDescriptor
	for i, a := range attachments {
		if a == nil {
			continue
		}
		desc := models.AttachmentDescriptor{
			Path:     strconv.Itoa(i),
			Filename: stringValue(a.GetName()),
			MimeType: stringValue(a.GetContentType()),
		}
		if size := a.GetSize(); size != nil {
			desc.Size = int64(*size)
		}
		if inline := a.GetIsInline(); inline != nil {
			desc.Inline = *inline
		}
		if fa, ok := a.(graphmodels.FileAttachmentable); ok {
			if cid := fa.GetContentId(); cid != nil {
				desc.ContentID = strings.Trim(*cid, "<>")
			}
		}
		out = append(out, desc)
	}
	return out
}

// graphBodyStructure converts a fetched attachment list plus the message
// body into a synthetic go-imap BodyStructure carrying only the fields
// services/bounce inspects (MIMEType, MIMESubType, Parts), the Outlook
// analogue of the Gmail reconciler's gmailBodyStructure — so the
// bounce/feedback-report classifier built for IMAP bodystructures runs
// unmodified against Graph messages.
func graphBodyStructure(msg graphmodels.Messageable, attachments []graphmodels.Attachmentable) *goimap.BodyStructure {
	bs := &goimap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}
	if body := msg.GetBody(); body != nil {
		if ct := body.GetContentType(); ct != nil && *ct == graphmodels.HTML_BODYTYPE {
			bs.MIMESubType = "html"
		}
	}
	for _, a := range attachments {
		if a == nil {
			continue
		}
		mimeType, mimeSubType := splitMimeType(stringValue(a.GetContentType()))
		bs.Parts = append(bs.Parts, &goimap.BodyStructure{MIMEType: mimeType, MIMESubType: mimeSubType})
	}
	return bs
}

func splitMimeType(mimeType string) (string, string) {
	idx := strings.Index(mimeType, "/")
	if idx < 0 {
		return mimeType, ""
	}
	return mimeType[:idx], mimeType[idx+1:]
}

// decodeAttachmentContent decodes a file attachment's base64 content bytes,
// or returns nil for a non-file attachment (item/reference attachments carry
// no inline bytes).
func decodeAttachmentContent(a graphmodels.Attachmentable) []byte {
	fa, ok := a.(graphmodels.FileAttachmentable)
	if !ok {
		return nil
	}
	return fa.GetContentBytes()
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
