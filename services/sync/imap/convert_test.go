package imapsync

import (
	"testing"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMessage() *goimap.Message {
	return &goimap.Message{
		Uid:          42,
		Flags:        []string{"\\Seen"},
		InternalDate: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Size:         1024,
		Envelope: &goimap.Envelope{
			Date:      time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
			Subject:   "hello",
			MessageId: "<abc@example.com>",
			From:      []*goimap.Address{{MailboxName: "alice", HostName: "example.com", PersonalName: "Alice"}},
			To:        []*goimap.Address{{MailboxName: "bob", HostName: "example.com"}},
		},
		BodyStructure: &goimap.BodyStructure{
			MIMEType:    "multipart",
			MIMESubType: "mixed",
			Parts: []*goimap.BodyStructure{
				{MIMEType: "text", MIMESubType: "plain"},
				{
					MIMEType:          "image",
					MIMESubType:       "png",
					Disposition:       "attachment",
					DispositionParams: map[string]string{"filename": "logo.png"},
					Size:              2048,
				},
			},
		},
	}
}

func TestBuildEnvelopePopulatesCoreFields(t *testing.T) {
	env := buildEnvelope("acct_1", "fold_1", sampleMessage())

	assert.Equal(t, "acct_1", env.AccountID)
	assert.Equal(t, "fold_1", env.FolderID)
	assert.Equal(t, "42", env.UIDOrMessageID)
	assert.Equal(t, "hello", env.Subject)
	assert.Equal(t, "<abc@example.com>", env.MessageID)
	assert.Equal(t, []string{"alice@example.com"}, env.FromAddresses)
	assert.Equal(t, []string{"bob@example.com"}, env.ToAddresses)
	assert.NotZero(t, env.ThreadID)
	assert.Equal(t, int64(1024), env.Size)

	attachments, err := env.GetAttachments()
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	assert.Equal(t, "logo.png", attachments[0].Filename)
	assert.Equal(t, "2", attachments[0].Path)
	assert.False(t, attachments[0].Inline)
}

func TestBuildEnvelopeFallsBackToInternalDateWithoutEnvelope(t *testing.T) {
	msg := &goimap.Message{
		Uid:          7,
		InternalDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	env := buildEnvelope("acct_1", "fold_1", msg)
	assert.Equal(t, env.InternalDateMs, env.DateMs)
}

func TestConvertAddressesDropsInvalidAndIncomplete(t *testing.T) {
	addrs := []*goimap.Address{
		{MailboxName: "good", HostName: "example.com"},
		{MailboxName: "", HostName: "example.com"},
		{MailboxName: "nohost", HostName: ""},
	}
	out := convertAddresses(addrs)
	assert.Equal(t, []string{"good@example.com"}, out)
}

func TestCollectAttachmentsWalksNestedParts(t *testing.T) {
	bs := &goimap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*goimap.BodyStructure{
			{MIMEType: "text", MIMESubType: "plain"},
			{
				MIMEType:    "multipart",
				MIMESubType: "related",
				Parts: []*goimap.BodyStructure{
					{MIMEType: "text", MIMESubType: "html"},
					{MIMEType: "image", MIMESubType: "png", Disposition: "inline", Id: "<logo@x>"},
				},
			},
		},
	}

	descriptors := collectAttachments(bs, nil)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "2.2", descriptors[0].Path)
	assert.True(t, descriptors[0].Inline)
	assert.Equal(t, "logo@x", descriptors[0].ContentID)
}

func TestAttachmentFilenameFallsBackToMimeSubtype(t *testing.T) {
	bs := &goimap.BodyStructure{MIMEType: "image", MIMESubType: "png"}
	assert.Equal(t, "attachment.png", attachmentFilename(bs))
}

func TestSectionPath(t *testing.T) {
	assert.Equal(t, "1", sectionPath(nil))
	assert.Equal(t, "2.3", sectionPath([]int{2, 3}))
}
