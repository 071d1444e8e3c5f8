package gmailsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/mailforge/mailforge/internal/models"
)

func TestChooseSubscribedLabelsDefaultsToInboxAndSent(t *testing.T) {
	labels := []*gmailv1.Label{
		{Id: "INBOX", Name: "INBOX"},
		{Id: "SENT", Name: "SENT"},
		{Id: "Label_1", Name: "Promotions"},
	}
	account := &models.Account{}
	selected := chooseSubscribedLabels(account, labels)

	ids := make([]string, len(selected))
	for i, l := range selected {
		ids[i] = l.Id
	}
	assert.ElementsMatch(t, []string{"INBOX", "SENT"}, ids)
}

func TestChooseSubscribedLabelsHonorsExplicitSubscription(t *testing.T) {
	labels := []*gmailv1.Label{
		{Id: "INBOX", Name: "INBOX"},
		{Id: "Label_1", Name: "Promotions"},
	}
	account := &models.Account{}
	account.SubscribedFolders = []string{"Label_1"}
	selected := chooseSubscribedLabels(account, labels)

	require.Len(t, selected, 1)
	assert.Equal(t, "Label_1", selected[0].Id)
}

func TestSinceQueryBuildsAfterOperator(t *testing.T) {
	assert.Equal(t, "", sinceQuery(0))
	assert.Equal(t, "after:1700000000", sinceQuery(1700000000))
}
