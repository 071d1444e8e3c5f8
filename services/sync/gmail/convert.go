package gmailsync

import (
	"encoding/base64"
	"net/mail"
	"strconv"
	"strings"

	goimap "github.com/emersion/go-imap"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailforge/mailforge/internal/models"
)

// metadataHeaders are the headers fetched on every metadata-format Get
// call; buildEnvelope only ever reads these, so a request asking for more
// is wasted bandwidth and one asking for fewer breaks thread/address
// population silently.
var metadataHeaders = [...]string{
	"From", "To", "Cc", "Bcc", "Subject", "Date",
	"Message-Id", "In-Reply-To", "References",
}

// buildEnvelope converts a Gmail API message (metadata or full format) into
// a rich envelope row. Flags are derived from LabelIds rather than a native
// flag set: Gmail has no IMAP-style \Seen/\Flagged, only label membership,
// so UNREAD absence maps to \Seen and STARRED presence maps to \Flagged.
func buildEnvelope(accountID, folderID string, msg *gmailv1.Message) *models.Envelope {
	header := headerMap(msg)

	env := &models.Envelope{
		AccountID:      accountID,
		FolderID:       folderID,
		UIDOrMessageID: msg.Id,
		InternalDateMs: msg.InternalDate,
		DateMs:         msg.InternalDate,
		Size:           msg.SizeEstimate,
		Flags:          flagsFromLabels(msg.LabelIds),
	}
	env.FlagsHash = models.FlagsHash(env.Flags)

	env.Subject = header.get("Subject")
	env.MessageID = strings.Trim(header.get("Message-Id"), "<>")
	env.InReplyTo = strings.Trim(header.get("In-Reply-To"), "<>")
	if refs := header.get("References"); refs != "" {
		for _, ref := range strings.Fields(refs) {
			env.References = append(env.References, strings.Trim(ref, "<>"))
		}
	}
	if d, err := mail.ParseDate(header.get("Date")); err == nil {
		env.DateMs = d.UnixMilli()
	}

	env.FromAddresses = parseAddressList(header.get("From"))
	env.ToAddresses = parseAddressList(header.get("To"))
	env.CcAddresses = parseAddressList(header.get("Cc"))
	env.BccAddresses = parseAddressList(header.get("Bcc"))

	// The Thread table's rollup key is always the header-based function,
	// computed independently by EnvelopeRepository.SaveEnvelopes; setting
	// it here with Gmail's own ThreadId would just disagree with it.
	env.ThreadID = models.ThreadIDFor(env.References, env.MessageID)

	if msg.Payload != nil {
		descriptors := collectAttachments(msg.Payload, nil)
		if len(descriptors) > 0 {
			_ = env.SetAttachments(descriptors)
		}
	}

	return env
}

type headerLookup map[string]string

func (h headerLookup) get(name string) string {
	return h[strings.ToLower(name)]
}

func headerMap(msg *gmailv1.Message) headerLookup {
	out := make(headerLookup)
	if msg.Payload == nil {
		return out
	}
	for _, h := range msg.Payload.Headers {
		out[strings.ToLower(h.Name)] = h.Value
	}
	return out
}

func parseAddressList(raw string) []string {
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

// flagsFromLabels maps Gmail's label membership onto the same flag
// vocabulary the IMAP reconciler stores, so downstream consumers (the
// EmailFlagsChanged hook, any UI built on the envelope store) see one
// consistent flag set regardless of provider.
func flagsFromLabels(labelIDs []string) []string {
	flags := []string{goimap.SeenFlag}
	for _, id := range labelIDs {
		switch id {
		case "UNREAD":
			kept := flags[:0]
			for _, f := range flags {
				if f != goimap.SeenFlag {
					kept = append(kept, f)
				}
			}
			flags = kept
		case "STARRED":
			flags = append(flags, goimap.FlaggedFlag)
		case "TRASH":
			flags = append(flags, goimap.DeletedFlag)
		case "DRAFT":
			flags = append(flags, goimap.DraftFlag)
		}
	}
	return dedupeFlags(flags)
}

func dedupeFlags(flags []string) []string {
	seen := make(map[string]struct{}, len(flags))
	out := flags[:0]
	for _, f := range flags {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// collectAttachments walks a Gmail message payload tree and records every
// part carrying a filename or an attachment id as an AttachmentDescriptor,
// addressed by a dot-joined, zero-based part-index path ("0" for the root
// part).
func collectAttachments(part *gmailv1.MessagePart, path []int) []models.AttachmentDescriptor {
	if part == nil {
		return nil
	}

	var out []models.AttachmentDescriptor
	if part.Filename != "" || (part.Body != nil && part.Body.AttachmentId != "") {
		out = append(out, models.AttachmentDescriptor{
			Path:      gmailSectionPath(path),
			Filename:  attachmentFilename(part),
			MimeType:  part.MimeType,
			Size:      bodySize(part),
			Inline:    isInlinePart(part),
			ContentID: strings.Trim(partHeader(part, "Content-Id"), "<>"),
		})
	}

	for i, child := range part.Parts {
		childPath := make([]int, len(path), len(path)+1)
		copy(childPath, path)
		childPath = append(childPath, i)
		out = append(out, collectAttachments(child, childPath)...)
	}
	return out
}

func bodySize(part *gmailv1.MessagePart) int64 {
	if part.Body == nil {
		return 0
	}
	return int64(part.Body.Size)
}

func isInlinePart(part *gmailv1.MessagePart) bool {
	return strings.Contains(strings.ToLower(partHeader(part, "Content-Disposition")), "inline")
}

func partHeader(part *gmailv1.MessagePart, name string) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func attachmentFilename(part *gmailv1.MessagePart) string {
	if part.Filename != "" {
		return part.Filename
	}
	mimeType := part.MimeType
	if idx := strings.Index(mimeType, "/"); idx >= 0 {
		mimeType = mimeType[idx+1:]
	}
	return "attachment." + mimeType
}

func gmailSectionPath(path []int) string {
	if len(path) == 0 {
		return "0"
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

// gmailBodyStructure converts a Gmail message payload into a synthetic
// go-imap BodyStructure carrying only the fields services/bounce inspects
// (MIMEType, MIMESubType, Parts), so the bounce/feedback-report classifier
// built for IMAP bodystructures runs unmodified against Gmail messages.
func gmailBodyStructure(part *gmailv1.MessagePart) *goimap.BodyStructure {
	if part == nil {
		return nil
	}
	mimeType, mimeSubType := splitMimeType(part.MimeType)
	bs := &goimap.BodyStructure{
		MIMEType:    mimeType,
		MIMESubType: mimeSubType,
	}
	for _, child := range part.Parts {
		bs.Parts = append(bs.Parts, gmailBodyStructure(child))
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

// decodeBody decodes a Gmail message part's base64url-encoded body data.
func decodeBody(body *gmailv1.MessagePartBody) []byte {
	if body == nil || body.Data == "" {
		return nil
	}
	data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(body.Data)
	if err != nil {
		return nil
	}
	return data
}
