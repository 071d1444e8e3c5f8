package imapsync

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestResolveInlineAttachmentsReplacesCidWithDataURL(t *testing.T) {
	html := `<html><body><img src="cid:logo123"></body></html>`
	inlines := []*enmime.Part{
		{ContentID: "<logo123>", ContentType: "image/png", Content: []byte("pngbytes")},
	}

	blobs := newFakeBlobCache()
	out := resolveInlineAttachments(context.Background(), blobs, "acct_1", "fold_1", 9, html, inlines, false)

	assert.NotContains(t, out, "cid:logo123")
	assert.Contains(t, out, "data:image/png;base64,"+base64.StdEncoding.EncodeToString([]byte("pngbytes")))
	assert.Len(t, blobs.uploaded, 1)
}

func TestResolveInlineAttachmentsLeavesUnmatchedCidAlone(t *testing.T) {
	html := `<html><body><img src="cid:missing"></body></html>`
	out := resolveInlineAttachments(context.Background(), nil, "acct_1", "fold_1", 9, html, nil, false)
	assert.Equal(t, html, out)
}

func TestResolveInlineAttachmentsNoCidReferences(t *testing.T) {
	html := `<html><body><p>plain text</p></body></html>`
	inlines := []*enmime.Part{{ContentID: "<unused>", ContentType: "image/png", Content: []byte("x")}}
	out := resolveInlineAttachments(context.Background(), nil, "acct_1", "fold_1", 9, html, inlines, false)
	assert.Equal(t, html, out)
}

func TestFindInlinePartTrimsAngleBrackets(t *testing.T) {
	parts := []*enmime.Part{{ContentID: "<foo@bar>"}}
	require.NotNil(t, findInlinePart(parts, "foo@bar"))
	assert.Nil(t, findInlinePart(parts, "nope"))
}

func TestSanitizeSegmentStripsUnsafeCharacters(t *testing.T) {
	assert.Equal(t, "foo_bar", sanitizeSegment("foo/bar"))
	assert.Equal(t, "foobar", sanitizeSegment("<foobar>"))
}

func TestBlobKeyIncludesAllAddressingComponents(t *testing.T) {
	key := blobKey("acct_1", "fold_1", 9, "seg")
	assert.True(t, strings.HasPrefix(key, "inline/acct_1/fold_1/9/"))
	assert.True(t, strings.HasSuffix(key, "seg"))
}
