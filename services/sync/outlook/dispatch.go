package outlooksync

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/services/bounce"
)

// saveNewEnvelopes is the Outlook analogue of the Gmail/IMAP reconcilers'
// routine of the same name: persist rows for freshly observed messages,
// then — only when a consumer is actually subscribed and the account isn't
// MinimalSync — fetch the full message once per id (body + attachments) and
// dispatch the EmailAddedToFolder and bounce/feedback-report hooks.
func (r *Reconciler) saveNewEnvelopes(ctx context.Context, client *msgraphsdk.GraphServiceClient, account *models.Account, folder *models.Folder, msgs []graphmodels.Messageable) error {
	if len(msgs) == 0 {
		return nil
	}

	envelopes := make([]*models.Envelope, len(msgs))
	for i, msg := range msgs {
		envelopes[i] = buildEnvelope(account.ID, folder.ID, msg)
	}
	if err := r.envelopes.SaveEnvelopes(ctx, envelopes); err != nil {
		return err
	}

	if account.MinimalSync {
		return nil
	}

	wantAdded := r.isSubscribed(ctx, account.ID, enum.EventEmailAddedToFolder)
	wantBounce := r.isSubscribed(ctx, account.ID, enum.EventEmailBounce)
	wantFeedback := r.isSubscribed(ctx, account.ID, enum.EventEmailFeedBackReport)
	if !wantAdded && !wantBounce && !wantFeedback {
		return nil
	}

	user := account.EmailAddress
	for i, msg := range msgs {
		env := envelopes[i]
		id := env.UIDOrMessageID

		full, err := fetchFullMessage(ctx, client, user, id)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("outlooksync: full-message fetch failed for account %s message %s: %v", account.ID, id, err)
			}
			continue
		}

		var attachments []graphmodels.Attachmentable
		if has := msg.GetHasAttachments(); has != nil && *has {
			attachments, err = fetchAttachments(ctx, client, user, id)
			if err != nil {
				if r.log != nil {
					r.log.Warnf("outlooksync: attachment fetch failed for account %s message %s: %v", account.ID, id, err)
				}
			} else if descriptors := collectAttachments(attachments); len(descriptors) > 0 {
				_ = env.SetAttachments(descriptors)
			}
		}

		isBounce := (wantBounce || wantFeedback) && bounce.Classify(env.Subject, graphBodyStructure(full, attachments))
		if !wantAdded && !isBounce {
			continue
		}

		if wantAdded {
			if err := r.dispatchEmailAdded(ctx, account, folder, env, full, attachments); err != nil && r.log != nil {
				r.log.Warnf("outlooksync: EmailAddedToFolder dispatch failed for account %s message %s: %v", account.ID, id, err)
			}
		}
		if isBounce {
			if err := r.dispatchBounce(ctx, account, env, full); err != nil && r.log != nil {
				r.log.Warnf("outlooksync: bounce dispatch failed for account %s message %s: %v", account.ID, id, err)
			}
		}
	}
	return nil
}

// dispatchEmailAdded extracts the single body part Graph returns (text or
// html, never both), resolves inline cid: references against the blob
// cache, and emits the EmailAddedToFolder event with the bounded body
// content the hook consumer expects.
func (r *Reconciler) dispatchEmailAdded(ctx context.Context, account *models.Account, folder *models.Folder, env *models.Envelope, full graphmodels.Messageable, attachments []graphmodels.Attachmentable) error {
	text, html := bodyContent(full)
	html = r.resolveInlineAttachments(ctx, account.ID, folder.ID, env.UIDOrMessageID, html, attachments)

	payload := map[string]interface{}{
		"envelopeId": env.UIDOrMessageID,
		"folderId":   folder.ID,
		"subject":    env.Subject,
		"from":       env.FromAddresses,
		"to":         env.ToAddresses,
		"cc":         env.CcAddresses,
		"bodyText":   truncateBytes(text, r.cfg.MaxBodyContentBytes),
		"bodyHtml":   truncateBytes(html, r.cfg.MaxBodyContentBytes),
	}
	return r.emit(ctx, account, enum.EventEmailAddedToFolder, payload)
}

// dispatchBounce extracts delivery-status/feedback-report evidence from a
// reconstructed RFC 822 source and emits the matching event.
func (r *Reconciler) dispatchBounce(ctx context.Context, account *models.Account, env *models.Envelope, full graphmodels.Messageable) error {
	report, err := bounce.Extract(rawSource(full))
	if err != nil {
		return err
	}

	eventType := enum.EventEmailBounce
	if report.DeliveryStatus == nil && report.FeedbackReport != nil {
		eventType = enum.EventEmailFeedBackReport
	}

	payload := map[string]interface{}{
		"envelopeId":      env.UIDOrMessageID,
		"deliveryStatus":  report.DeliveryStatus,
		"feedbackReport":  report.FeedbackReport,
		"originalHeaders": report.OriginalHeaders,
	}
	return r.emit(ctx, account, eventType, payload)
}

// bodyContent reads full's single body part into the (text, html) pair the
// rest of the dispatch pipeline expects, leaving whichever side Graph didn't
// populate empty.
func bodyContent(full graphmodels.Messageable) (text, html string) {
	body := full.GetBody()
	if body == nil {
		return "", ""
	}
	content := stringValue(body.GetContent())
	if ct := body.GetContentType(); ct != nil && *ct == graphmodels.HTML_BODYTYPE {
		return "", content
	}
	return content, ""
}

// rawSource reconstructs a minimal RFC 822 source (headers + body) from a
// full message fetch, for bounce.Extract's textproto header/MIME-boundary
// scanning — the Outlook analogue of the Gmail reconciler's rawSource.
// Graph never exposes the true original bytes the way IMAP's BODY[] or
// Gmail's "raw" format do, so a bounce/feedback report embedded as a nested
// message/rfc822 part is read back out of its own decoded body text rather
// than off raw wire bytes.
func rawSource(full graphmodels.Messageable) []byte {
	var buf strings.Builder
	for _, h := range full.GetInternetMessageHeaders() {
		name := h.GetName()
		value := h.GetValue()
		if name == nil || value == nil {
			continue
		}
		buf.WriteString(*name)
		buf.WriteString(": ")
		buf.WriteString(*value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	if body := full.GetBody(); body != nil {
		buf.WriteString(stringValue(body.GetContent()))
	}
	return []byte(buf.String())
}

// resolveInlineAttachments is the Outlook analogue of the Gmail/IMAP
// reconcilers' helper of the same name: rewrite every cid: reference in
// html to a data: URL built from the matching inline file attachment's
// decoded content.
func (r *Reconciler) resolveInlineAttachments(ctx context.Context, accountID, folderID, messageID, html string, attachments []graphmodels.Attachmentable) string {
	if html == "" || len(attachments) == 0 {
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
		a := findInlineGraphAttachment(attachments, cid)
		if a == nil {
			continue
		}
		content := decodeAttachmentContent(a)
		if len(content) == 0 {
			continue
		}
		mimeType := stringValue(a.GetContentType())

		if r.blobs != nil {
			key := fmt.Sprintf("inline/%s/%s/%s/%s", accountID, folderID, messageID, sanitizeSegment(cid))
			if cached, err := r.blobs.Download(ctx, key); err == nil && len(cached) > 0 {
				content = cached
			} else {
				_ = r.blobs.Upload(ctx, key, content, mimeType)
			}
		}

		dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(content))
		result = strings.ReplaceAll(result, "cid:"+cid, dataURL)
	}
	return result
}

func findInlineGraphAttachment(attachments []graphmodels.Attachmentable, cid string) graphmodels.Attachmentable {
	for _, a := range attachments {
		fa, ok := a.(graphmodels.FileAttachmentable)
		if !ok {
			continue
		}
		if contentID := fa.GetContentId(); contentID != nil && strings.Trim(*contentID, "<>") == cid {
			return a
		}
	}
	return nil
}

func sanitizeSegment(s string) string {
	return strings.NewReplacer("/", "_", "<", "", ">", "").Replace(s)
}

func truncateBytes(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
