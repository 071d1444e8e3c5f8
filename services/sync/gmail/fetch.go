package gmailsync

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailforge/mailforge/internal/mailerrors"
)

// listMessageIDs pages through Users.Messages.List for labelID, optionally
// bounded by sinceQuery (an "after:<unix-seconds>" search operator, Gmail's
// equivalent of IMAP's SEARCH SINCE), and trims the result to limit — Gmail
// returns newest-first, so trimming keeps the newest messages the same way
// the IMAP reconciler's rebuildFolderSince keeps the highest UIDs.
func listMessageIDs(ctx context.Context, svc *gmailv1.Service, labelID, sinceQuery string, limit int) ([]string, error) {
	call := svc.Users.Messages.List(gmailUser).LabelIds(labelID).MaxResults(500)
	if sinceQuery != "" {
		call = call.Q(sinceQuery)
	}

	var ids []string
	pageToken := ""
	for {
		page := call
		if pageToken != "" {
			page = page.PageToken(pageToken)
		}
		resp, err := page.Context(ctx).Do()
		if err != nil {
			return nil, mailerrors.NewProtocolError("gmail.messages.list", err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if limit > 0 && len(ids) >= limit {
			return ids[:limit], nil
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}

// fetchMetadataConcurrent fetches metadataHeaders for every id in ids, at
// most concurrency requests in flight at once, mirroring the IMAP
// reconciler's uidFetchConcurrent fan-out pattern. The first failed request
// cancels the ones still in flight and fails the whole batch.
func fetchMetadataConcurrent(ctx context.Context, svc *gmailv1.Service, ids []string, concurrency int) ([]*gmailv1.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	results := make([]*gmailv1.Message, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			msg, err := svc.Users.Messages.Get(gmailUser, id).
				Format("metadata").
				MetadataHeaders(metadataHeaders[:]...).
				Context(gctx).
				Do()
			if err != nil {
				return mailerrors.NewProtocolError("gmail.messages.get", err)
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// fetchFullMessage fetches the full-format payload for id, used only when
// the EmailAddedToFolder or bounce/feedback-report hook is actually
// subscribed, since it costs a full body download per message.
func fetchFullMessage(ctx context.Context, svc *gmailv1.Service, id string) (*gmailv1.Message, error) {
	msg, err := svc.Users.Messages.Get(gmailUser, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mailerrors.NewProtocolError("gmail.messages.get.full", err)
	}
	return msg, nil
}

// sinceQuery builds Gmail's "after:" search operator from a Unix-seconds
// cutoff, or returns "" when the cutoff is zero or negative.
func sinceQuery(sinceUnixSeconds int64) string {
	if sinceUnixSeconds <= 0 {
		return ""
	}
	return "after:" + strconv.FormatInt(sinceUnixSeconds, 10)
}
