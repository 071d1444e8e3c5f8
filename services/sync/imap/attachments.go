package imapsync

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"

	"github.com/mailforge/mailforge/interfaces"
)

// resolveInlineAttachments rewrites every cid: reference in an HTML body
// part to a data: URL built from the matching inline attachment's decoded
// content. goquery locates the cid: references; the substitution itself is
// a plain string replace, since re-serializing the DOM through goquery risks
// reordering attributes and self-closing tags the original message never
// had.
func resolveInlineAttachments(ctx context.Context, blobs interfaces.BlobCache, accountID, folderID string, uid uint32, html string, inlines []*enmime.Part, skipCache bool) string {
	if html == "" || len(inlines) == 0 {
		return html
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	seen := make(map[string]struct{})
	doc.Find("[src^='cid:'], [background^='cid:']").Each(func(_ int, sel *goquery.Selection) {
		for _, attr := range [...]string{"src", "background"} {
			v, ok := sel.Attr(attr)
			if !ok || !strings.HasPrefix(v, "cid:") {
				continue
			}
			seen[strings.TrimPrefix(v, "cid:")] = struct{}{}
		}
	})
	if len(seen) == 0 {
		return html
	}

	result := html
	for cid := range seen {
		part := findInlinePart(inlines, cid)
		if part == nil || len(part.Content) == 0 {
			continue
		}

		content := part.Content
		if !skipCache && blobs != nil {
			key := blobKey(accountID, folderID, uid, sanitizeSegment(cid))
			if cached, err := blobs.Download(ctx, key); err == nil && len(cached) > 0 {
				content = cached
			} else {
				_ = blobs.Upload(ctx, key, content, part.ContentType)
			}
		}

		dataURL := fmt.Sprintf("data:%s;base64,%s", part.ContentType, base64.StdEncoding.EncodeToString(content))
		result = strings.ReplaceAll(result, "cid:"+cid, dataURL)
	}
	return result
}

func findInlinePart(parts []*enmime.Part, cid string) *enmime.Part {
	for _, p := range parts {
		if strings.Trim(p.ContentID, "<>") == cid {
			return p
		}
	}
	return nil
}

// blobKey addresses one inline attachment's cached payload by the
// (account, folder, uid, segment) tuple it was resolved from.
func blobKey(accountID, folderID string, uid uint32, segment string) string {
	return fmt.Sprintf("inline/%s/%s/%d/%s", accountID, folderID, uid, segment)
}

func sanitizeSegment(s string) string {
	return strings.NewReplacer("/", "_", "<", "", ">", "").Replace(s)
}
