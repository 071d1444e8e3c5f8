package imapsync

import (
	"bytes"
	"context"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	"github.com/mailforge/mailforge/internal/enum"
	"github.com/mailforge/mailforge/internal/models"
	"github.com/mailforge/mailforge/services/bounce"
)

// saveNewEnvelopes is the new-envelopes routine: given freshly UID-FETCHed
// metadata, build and persist the rich/minimal rows, then — only for
// accounts that aren't MinimalSync and only when a consumer is actually
// subscribed — fetch the full RFC 822 source once per message and dispatch
// the EmailAddedToFolder and bounce/feedback-report hooks off of it.
func (r *Reconciler) saveNewEnvelopes(ctx context.Context, c *client.Client, account *models.Account, folder *models.Folder, msgs []*goimap.Message) error {
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

	for i, msg := range msgs {
		env := envelopes[i]
		isBounce := (wantBounce || wantFeedback) && bounce.Classify(env.Subject, msg.BodyStructure)
		if !wantAdded && !isBounce {
			continue
		}

		raw, err := fetchFullMessage(c, msg.Uid)
		if err != nil {
			if r.log != nil {
				r.log.Warnf("imapsync: full-message fetch failed for account %s uid %d: %v", account.ID, msg.Uid, err)
			}
			continue
		}

		if wantAdded {
			if err := r.dispatchEmailAdded(ctx, account, folder, msg.Uid, env, raw); err != nil && r.log != nil {
				r.log.Warnf("imapsync: EmailAddedToFolder dispatch failed for account %s uid %d: %v", account.ID, msg.Uid, err)
			}
		}
		if isBounce {
			if err := r.dispatchBounce(ctx, account, env, raw); err != nil && r.log != nil {
				r.log.Warnf("imapsync: bounce dispatch failed for account %s uid %d: %v", account.ID, msg.Uid, err)
			}
		}
	}
	return nil
}

// dispatchEmailAdded parses the full message, resolves inline cid:
// attachments against the blob cache, and emits the EmailAddedToFolder
// event with the bounded body content the hook consumer expects.
func (r *Reconciler) dispatchEmailAdded(ctx context.Context, account *models.Account, folder *models.Folder, uid uint32, env *models.Envelope, raw []byte) error {
	parsed, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return err
	}

	html := resolveInlineAttachments(ctx, r.blobs, account.ID, folder.ID, uid, parsed.HTML, parsed.Inlines, false)

	payload := map[string]interface{}{
		"envelopeId": env.UIDOrMessageID,
		"folderId":   folder.ID,
		"subject":    env.Subject,
		"from":       env.FromAddresses,
		"to":         env.ToAddresses,
		"cc":         env.CcAddresses,
		"bodyText":   truncateBytes(parsed.Text, r.cfg.MaxBodyContentBytes),
		"bodyHtml":   truncateBytes(html, r.cfg.MaxBodyContentBytes),
	}
	return r.emit(ctx, account, enum.EventEmailAddedToFolder, payload)
}

// dispatchBounce extracts delivery-status/feedback-report evidence from the
// full message and emits the matching event; a message with only a
// feedback-report part (and no delivery-status) is an ARF report rather
// than a DSN bounce.
func (r *Reconciler) dispatchBounce(ctx context.Context, account *models.Account, env *models.Envelope, raw []byte) error {
	report, err := bounce.Extract(raw)
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

func truncateBytes(s string, max int) string {
	if max > 0 && len(s) > max {
		return s[:max]
	}
	return s
}
