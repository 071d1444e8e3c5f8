package imapsync

import (
	"fmt"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	goimap "github.com/emersion/go-imap"

	"github.com/mailforge/mailforge/internal/models"
)

// buildEnvelope converts a metadata-only IMAP FETCH response into a rich
// envelope row. msg must carry FetchEnvelope, FetchBodyStructure, FetchFlags,
// FetchInternalDate, FetchRFC822Size, and FetchUid; body content is resolved
// separately by the EmailAddedToFolder hook path, not here.
func buildEnvelope(accountID, folderID string, msg *goimap.Message) *models.Envelope {
	env := &models.Envelope{
		AccountID:      accountID,
		FolderID:       folderID,
		UIDOrMessageID: formatUID(msg.Uid),
		InternalDateMs: msg.InternalDate.UnixMilli(),
		Size:           int64(msg.Size),
		Flags:          msg.Flags,
		FlagsHash:      models.FlagsHash(msg.Flags),
	}

	if e := msg.Envelope; e != nil {
		if !e.Date.IsZero() {
			env.DateMs = e.Date.UnixMilli()
		} else {
			env.DateMs = env.InternalDateMs
		}
		env.Subject = e.Subject
		env.MessageID = e.MessageId
		env.InReplyTo = e.InReplyTo

		// Many clients pack References into InReplyTo space-separated
		// rather than sending a proper References header over IMAP
		// envelope data; the first token is the thread root either way.
		if e.InReplyTo != "" {
			env.References = strings.Fields(e.InReplyTo)
		}

		if len(e.From) > 0 {
			env.FromAddresses = convertAddresses(e.From)
		}
		env.ToAddresses = convertAddresses(e.To)
		env.CcAddresses = convertAddresses(e.Cc)
		env.BccAddresses = convertAddresses(e.Bcc)
		env.ReplyToAddresses = convertAddresses(e.ReplyTo)
		env.SenderAddresses = convertAddresses(e.Sender)
	} else {
		env.DateMs = env.InternalDateMs
	}

	env.ThreadID = models.ThreadIDFor(env.References, env.MessageID)

	if msg.BodyStructure != nil {
		descriptors := collectAttachments(msg.BodyStructure, nil)
		if len(descriptors) > 0 {
			_ = env.SetAttachments(descriptors)
		}
	}

	return env
}

// convertAddresses validates and normalizes a set of IMAP envelope
// addresses, dropping any that don't parse as a syntactically valid email.
func convertAddresses(addrs []*goimap.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.MailboxName == "" || addr.HostName == "" {
			continue
		}
		validation := mailvalidate.ValidateEmailSyntax(addr.Address())
		if validation.IsValid {
			out = append(out, validation.CleanEmail)
		}
	}
	return out
}

// collectAttachments walks a bodystructure tree and records every part
// carrying a content-disposition, inline or attached, as an
// AttachmentDescriptor addressed by its dot-separated IMAP section path.
func collectAttachments(bs *goimap.BodyStructure, path []int) []models.AttachmentDescriptor {
	if bs == nil {
		return nil
	}

	var out []models.AttachmentDescriptor
	disposition := strings.ToLower(bs.Disposition)
	if disposition == "attachment" || disposition == "inline" {
		out = append(out, models.AttachmentDescriptor{
			Path:      sectionPath(path),
			Filename:  attachmentFilename(bs),
			MimeType:  fmt.Sprintf("%s/%s", strings.ToLower(bs.MIMEType), strings.ToLower(bs.MIMESubType)),
			Encoding:  bs.Encoding,
			Size:      int64(bs.Size),
			Inline:    disposition == "inline",
			ContentID: strings.Trim(bs.Id, "<>"),
		})
	}

	for i, part := range bs.Parts {
		childPath := make([]int, len(path), len(path)+1)
		copy(childPath, path)
		childPath = append(childPath, i+1)
		out = append(out, collectAttachments(part, childPath)...)
	}
	return out
}

func attachmentFilename(bs *goimap.BodyStructure) string {
	if bs.DispositionParams != nil {
		if name, ok := bs.DispositionParams["filename"]; ok && name != "" {
			return name
		}
	}
	if bs.Params != nil {
		if name, ok := bs.Params["name"]; ok && name != "" {
			return name
		}
	}
	return fmt.Sprintf("attachment.%s", strings.ToLower(bs.MIMESubType))
}

func sectionPath(path []int) string {
	if len(path) == 0 {
		return "1"
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, ".")
}
