package bounce

import (
	"testing"

	imap "github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func reportStructure() *imap.BodyStructure {
	return &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "report",
		Parts: []*imap.BodyStructure{
			{MIMEType: "text", MIMESubType: "plain"},
			{MIMEType: "message", MIMESubType: "delivery-status"},
			{MIMEType: "message", MIMESubType: "rfc822"},
		},
	}
}

func TestIsBounceSubject(t *testing.T) {
	assert.True(t, IsBounceSubject("Undeliverable: Re: invoice"))
	assert.True(t, IsBounceSubject("Mail Delivery Failure"))
	assert.True(t, IsBounceSubject("Delivery Status Notification (Failure)"))
	assert.False(t, IsBounceSubject(""))
	assert.False(t, IsBounceSubject("Re: invoice #4821"))
}

func TestHasBounceEvidenceWalksNestedParts(t *testing.T) {
	assert.True(t, HasBounceEvidence(reportStructure()))
	assert.False(t, HasBounceEvidence(&imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}))
	assert.False(t, HasBounceEvidence(nil))
}

func TestCollectBounceParts(t *testing.T) {
	paths := CollectBounceParts(reportStructure(), nil)
	assert.ElementsMatch(t, []string{"2", "3"}, paths)
}

func TestClassifyRequiresBothSubjectAndEvidence(t *testing.T) {
	assert.True(t, Classify("Undeliverable: hello", reportStructure()))
	assert.False(t, Classify("hello", reportStructure()), "bounce-shaped parts alone (e.g. a forwarded digest) aren't enough")
	assert.False(t, Classify("Undeliverable: hello", &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}))
}
