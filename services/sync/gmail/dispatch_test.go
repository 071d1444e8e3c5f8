package gmailsync

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailv1 "google.golang.org/api/gmail/v1"
)

type fakeBlobCache struct {
	uploaded map[string][]byte
}

func newFakeBlobCache() *fakeBlobCache {
	return &fakeBlobCache{uploaded: make(map[string][]byte)}
}

func (f *fakeBlobCache) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.uploaded[key] = data
	return nil
}

func (f *fakeBlobCache) Download(ctx context.Context, key string) ([]byte, error) {
	if data, ok := f.uploaded[key]; ok {
		return data, nil
	}
	return nil, assert.AnError
}

func encodeBody(s string) *gmailv1.MessagePartBody {
	return &gmailv1.MessagePartBody{Data: base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString([]byte(s))}
}

func TestExtractBodiesFindsPlainAndHTML(t *testing.T) {
	payload := &gmailv1.MessagePart{
		MimeType: "multipart/alternative",
		Parts: []*gmailv1.MessagePart{
			{MimeType: "text/plain", Body: encodeBody("plain body")},
			{MimeType: "text/html", Body: encodeBody("<p>html body</p>")},
		},
	}
	text, html, inlines := extractBodies(payload, nil)
	assert.Equal(t, "plain body", text)
	assert.Equal(t, "<p>html body</p>", html)
	assert.Empty(t, inlines)
}

func TestExtractBodiesCollectsInlineParts(t *testing.T) {
	inlinePart := &gmailv1.MessagePart{
		MimeType: "image/png",
		Headers: []*gmailv1.MessagePartHeader{
			header("Content-Disposition", "inline"),
			header("Content-Id", "<logo123>"),
		},
		Body: encodeBody("pngbytes"),
	}
	payload := &gmailv1.MessagePart{
		MimeType: "multipart/related",
		Parts: []*gmailv1.MessagePart{
			{MimeType: "text/html", Body: encodeBody(`<img src="cid:logo123">`)},
			inlinePart,
		},
	}
	_, html, inlines := extractBodies(payload, nil)
	require.Len(t, inlines, 1)
	assert.Equal(t, "logo123", strings.Trim(partHeader(inlines[0], "Content-Id"), "<>"))
	assert.Contains(t, html, "cid:logo123")
}

func TestResolveInlineAttachmentsReplacesCidWithDataURL(t *testing.T) {
	html := `<html><body><img src="cid:logo123"></body></html>`
	inlines := []*gmailv1.MessagePart{
		{
			MimeType: "image/png",
			Headers:  []*gmailv1.MessagePartHeader{header("Content-Id", "<logo123>")},
			Body:     encodeBody("pngbytes"),
		},
	}

	r := &Reconciler{blobs: newFakeBlobCache()}
	out := r.resolveInlineAttachments(context.Background(), "acct_1", "fold_1", "msg_1", html, inlines)

	assert.NotContains(t, out, "cid:logo123")
	assert.Contains(t, out, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("pngbytes")))
}

func TestResolveInlineAttachmentsLeavesUnmatchedCidAlone(t *testing.T) {
	html := `<html><body><img src="cid:missing"></body></html>`
	r := &Reconciler{}
	out := r.resolveInlineAttachments(context.Background(), "acct_1", "fold_1", "msg_1", html, nil)
	assert.Equal(t, html, out)
}

func TestRawSourceIncludesHeadersAndPartBodies(t *testing.T) {
	msg := &gmailv1.Message{
		Payload: &gmailv1.MessagePart{
			Headers: []*gmailv1.MessagePartHeader{header("Subject", "bounce")},
			Parts: []*gmailv1.MessagePart{
				{MimeType: "message/delivery-status", Body: encodeBody("Action: failed\r\n")},
			},
		},
	}
	raw := string(rawSource(msg))
	assert.Contains(t, raw, "Subject: bounce")
	assert.Contains(t, raw, "Action: failed")
}

func TestTruncateBytes(t *testing.T) {
	assert.Equal(t, "abc", truncateBytes("abcdef", 3))
	assert.Equal(t, "abcdef", truncateBytes("abcdef", 0))
}

func TestSanitizeSegmentStripsUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "foo_bar", sanitizeSegment("foo/bar"))
	assert.Equal(t, "foobar", sanitizeSegment("<foobar>"))
}
