package outlooksync

import (
	"context"
	"time"

	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	graphmodels "github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/mailforge/mailforge/internal/mailerrors"
)

// metadataSelect are the message properties fetched on every rebuild-listing
// page; buildEnvelope only ever reads these, mirroring the Gmail reconciler's
// metadataHeaders constant.
var metadataSelect = []string{
	"id", "conversationId", "subject", "from", "toRecipients", "ccRecipients",
	"bccRecipients", "bodyPreview", "receivedDateTime", "internetMessageHeaders",
	"isRead", "flag", "hasAttachments", "internetMessageId", "parentFolderId",
}

// fullSelect additionally asks for the full body, fetched only once per
// message and only when a hook consumer actually needs it.
var fullSelect = append(append([]string{}, metadataSelect...), "body")

// listMailFolders pages through Users.MailFolders for user, returning every
// top-level mail folder Graph reports for the mailbox.
func listMailFolders(ctx context.Context, client *msgraphsdk.GraphServiceClient, user string) ([]graphmodels.MailFolderable, error) {
	requestConfig := &users.ItemMailFoldersRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMailFoldersRequestBuilderGetQueryParameters{
			Top: int32Ptr(250),
		},
	}
	result, err := client.Users().ByUserId(user).MailFolders().Get(ctx, requestConfig)
	if err != nil {
		return nil, mailerrors.NewProtocolError("outlook.mailfolders.list", err)
	}
	return result.GetValue(), nil
}

// listMessages pages through a single folder's Messages endpoint, bounded by
// sinceFilter (a "receivedDateTime ge <RFC3339>" OData filter, or "" for no
// lower bound) and trimmed to limit — Graph returns newest-first by default
// sort order, so trimming keeps the newest messages the same way the
// Gmail/IMAP reconcilers' rebuild paths do.
func listMessages(ctx context.Context, client *msgraphsdk.GraphServiceClient, user, folderID, sinceFilter string, limit int) ([]graphmodels.Messageable, error) {
	requestConfig := &users.ItemMailFoldersItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters{
			Top:    int32Ptr(100),
			Select: metadataSelect,
		},
	}
	if sinceFilter != "" {
		requestConfig.QueryParameters.Filter = &sinceFilter
	}

	var out []graphmodels.Messageable
	result, err := client.Users().ByUserId(user).MailFolders().ByMailFolderId(folderID).Messages().Get(ctx, requestConfig)
	if err != nil {
		return nil, mailerrors.NewProtocolError("outlook.messages.list", err)
	}
	for {
		out = append(out, result.GetValue()...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		next := result.GetOdataNextLink()
		if next == nil || *next == "" {
			break
		}
		result, err = users.NewItemMailFoldersItemMessagesRequestBuilder(*next, client.GetAdapter()).Get(ctx, nil)
		if err != nil {
			return nil, mailerrors.NewProtocolError("outlook.messages.list.page", err)
		}
	}
	return out, nil
}

// fetchFullMessage re-fetches id with the body included, used only when the
// EmailAddedToFolder or bounce/feedback-report hook is actually subscribed.
func fetchFullMessage(ctx context.Context, client *msgraphsdk.GraphServiceClient, user, id string) (graphmodels.Messageable, error) {
	requestConfig := &users.ItemMessagesItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesItemRequestBuilderGetQueryParameters{
			Select: fullSelect,
		},
	}
	msg, err := client.Users().ByUserId(user).Messages().ByMessageId(id).Get(ctx, requestConfig)
	if err != nil {
		return nil, mailerrors.NewProtocolError("outlook.messages.get.full", err)
	}
	return msg, nil
}

// fetchAttachments lists id's attachment metadata (and, for file
// attachments, their content bytes) — a separate call because the message
// list/get endpoints only report HasAttachments, not the attachments
// themselves.
func fetchAttachments(ctx context.Context, client *msgraphsdk.GraphServiceClient, user, id string) ([]graphmodels.Attachmentable, error) {
	result, err := client.Users().ByUserId(user).Messages().ByMessageId(id).Attachments().Get(ctx, nil)
	if err != nil {
		return nil, mailerrors.NewProtocolError("outlook.attachments.list", err)
	}
	return result.GetValue(), nil
}

// sinceFilter builds Graph's "receivedDateTime ge <RFC3339>" OData filter
// from a cutoff time, or returns "" when since is the zero value.
func sinceFilter(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return "receivedDateTime ge " + since.UTC().Format(time.RFC3339)
}

func int32Ptr(v int32) *int32 {
	return &v
}
