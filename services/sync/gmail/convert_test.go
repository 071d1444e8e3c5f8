package gmailsync

import (
	"encoding/base64"
	"testing"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailv1 "google.golang.org/api/gmail/v1"
)

func header(name, value string) *gmailv1.MessagePartHeader {
	return &gmailv1.MessagePartHeader{Name: name, Value: value}
}

func sampleMessage() *gmailv1.Message {
	return &gmailv1.Message{
		Id:             "18c4f2a1b2c3d4e5",
		InternalDate:   1740000000000,
		SizeEstimate:   2048,
		LabelIds:       []string{"INBOX", "STARRED"},
		Payload: &gmailv1.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmailv1.MessagePartHeader{
				header("From", "Alice <alice@example.com>"),
				header("To", "Bob <bob@example.com>"),
				header("Subject", "hello"),
				header("Date", "Sun, 01 Mar 2026 11:59:00 +0000"),
				header("Message-Id", "<abc@example.com>"),
			},
			Parts: []*gmailv1.MessagePart{
				{MimeType: "text/plain", Body: &gmailv1.MessagePartBody{Data: base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("hi"))}},
				{
					MimeType: "image/png",
					Filename: "logo.png",
					Body:     &gmailv1.MessagePartBody{AttachmentId: "att1", Size: 4096},
				},
			},
		},
	}
}

func TestBuildEnvelopePopulatesCoreFields(t *testing.T) {
	env := buildEnvelope("acct_1", "fold_1", sampleMessage())

	assert.Equal(t, "acct_1", env.AccountID)
	assert.Equal(t, "fold_1", env.FolderID)
	assert.Equal(t, "18c4f2a1b2c3d4e5", env.UIDOrMessageID)
	assert.Equal(t, "hello", env.Subject)
	assert.Equal(t, "abc@example.com", env.MessageID)
	assert.Equal(t, []string{"alice@example.com"}, env.FromAddresses)
	assert.Equal(t, []string{"bob@example.com"}, env.ToAddresses)
	assert.Contains(t, env.Flags, goimap.SeenFlag)
	assert.Contains(t, env.Flags, goimap.FlaggedFlag)
	assert.NotZero(t, env.ThreadID)

	attachments, err := env.GetAttachments()
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "logo.png", attachments[0].Filename)
}

func TestFlagsFromLabelsUnreadDropsSeen(t *testing.T) {
	flags := flagsFromLabels([]string{"INBOX", "UNREAD"})
	assert.NotContains(t, flags, goimap.SeenFlag)
}

func TestFlagsFromLabelsDefaultIsSeen(t *testing.T) {
	flags := flagsFromLabels([]string{"INBOX"})
	assert.Equal(t, []string{goimap.SeenFlag}, flags)
}

func TestParseAddressListDropsUnparsable(t *testing.T) {
	assert.Equal(t, []string{"good@example.com"}, parseAddressList("Good <good@example.com>"))
	assert.Nil(t, parseAddressList(""))
	assert.Nil(t, parseAddressList("not an address list <<<"))
}

func TestCollectAttachmentsWalksNestedParts(t *testing.T) {
	part := &gmailv1.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmailv1.MessagePart{
			{MimeType: "text/plain"},
			{
				MimeType: "multipart/related",
				Parts: []*gmailv1.MessagePart{
					{MimeType: "text/html"},
					{
						MimeType: "image/png",
						Headers: []*gmailv1.MessagePartHeader{
							header("Content-Disposition", "inline"),
							header("Content-Id", "<logo@x>"),
						},
						Body: &gmailv1.MessagePartBody{AttachmentId: "att2", Size: 512},
					},
				},
			},
		},
	}

	descriptors := collectAttachments(part, nil)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "1.1", descriptors[0].Path)
	assert.True(t, descriptors[0].Inline)
	assert.Equal(t, "logo@x", descriptors[0].ContentID)
}

func TestGmailBodyStructurePreservesMimeTypeAndNesting(t *testing.T) {
	part := &gmailv1.MessagePart{
		MimeType: "multipart/report",
		Parts: []*gmailv1.MessagePart{
			{MimeType: "text/plain"},
			{MimeType: "message/delivery-status"},
		},
	}
	bs := gmailBodyStructure(part)
	assert.Equal(t, "multipart", bs.MIMEType)
	assert.Equal(t, "report", bs.MIMESubType)
	require.Len(t, bs.Parts, 2)
	assert.Equal(t, "delivery-status", bs.Parts[1].MIMESubType)
}

func TestDecodeBodyHandlesUnpaddedBase64Url(t *testing.T) {
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte("payload"))
	out := decodeBody(&gmailv1.MessagePartBody{Data: encoded})
	assert.Equal(t, "payload", string(out))
}

func TestDecodeBodyNilOrEmpty(t *testing.T) {
	assert.Nil(t, decodeBody(nil))
	assert.Nil(t, decodeBody(&gmailv1.MessagePartBody{}))
}
