package bounce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bounceMessage = "From: Mail Delivery Subsystem <mailer-daemon@example.com>\r\n" +
	"To: sender@example.com\r\n" +
	"Subject: Undeliverable: Re: invoice\r\n" +
	"Content-Type: multipart/report; report-type=delivery-status;\r\n" +
	" boundary=\"BOUND1\"\r\n" +
	"MIME-Version: 1.0\r\n" +
	"\r\n" +
	"--BOUND1\r\n" +
	"Content-Type: text/plain; charset=us-ascii\r\n" +
	"\r\n" +
	"This is an automatically generated Delivery Status Notification.\r\n" +
	"\r\n" +
	"--BOUND1\r\n" +
	"Content-Type: message/delivery-status\r\n" +
	"\r\n" +
	"Reporting-MTA: dns; mail.example.com\r\n" +
	"Received-From-MTA: dns; client.example.com\r\n" +
	"Arrival-Date: Thu, 30 Jul 2026 10:00:00 -0700\r\n" +
	"X-Postfix-Queue-ID: 4ABCXYZ123\r\n" +
	"\r\n" +
	"Final-Recipient: rfc822; nobody@example.com\r\n" +
	"Original-Recipient: rfc822; nobody@example.com\r\n" +
	"Action: failed\r\n" +
	"Status: 5.1.1\r\n" +
	"Remote-MTA: dns; mx.example.com\r\n" +
	"Diagnostic-Code: smtp; 550 5.1.1 User unknown\r\n" +
	"X-Original-Message-Id: <orig-123@example.com>\r\n" +
	"\r\n" +
	"--BOUND1\r\n" +
	"Content-Type: message/rfc822\r\n" +
	"\r\n" +
	"From: someone@example.com\r\n" +
	"To: nobody@example.com\r\n" +
	"Subject: Re: invoice\r\n" +
	"Message-Id: <orig-123@example.com>\r\n" +
	"\r\n" +
	"original body text\r\n" +
	"--BOUND1--\r\n"

func TestExtractParsesDeliveryStatusAndOriginalHeaders(t *testing.T) {
	report, err := Extract([]byte(bounceMessage))
	require.NoError(t, err)
	require.NotNil(t, report.DeliveryStatus)

	ds := report.DeliveryStatus
	assert.Equal(t, "rfc822; nobody@example.com", ds.FinalRecipient)
	assert.Equal(t, "rfc822; nobody@example.com", ds.OriginalRecipient)
	assert.Equal(t, "failed", ds.Action)
	assert.Equal(t, "5.1.1", ds.Status)
	assert.Equal(t, "dns; mx.example.com", ds.RemoteMTA)
	assert.Equal(t, "dns; mail.example.com", ds.ReportingMTA)
	assert.Equal(t, "dns; client.example.com", ds.ReceivedFromMTA)
	assert.Equal(t, "smtp", ds.DiagnosticCodeType)
	assert.Equal(t, "550 5.1.1 User unknown", ds.DiagnosticCode)
	assert.Equal(t, "<orig-123@example.com>", ds.OriginalMessageID)
	assert.Equal(t, "4ABCXYZ123", ds.Postfix["Queue-Id"])

	require.NotNil(t, report.OriginalHeaders)
	assert.Contains(t, report.OriginalHeaders.Fields["Subject"], "Re: invoice")
	assert.Nil(t, report.FeedbackReport)
}

const feedbackReportMessage = "From: Feedback Loop <feedback@example.com>\r\n" +
	"To: sender@example.com\r\n" +
	"Subject: Undeliverable: complaint\r\n" +
	"Content-Type: multipart/report; report-type=feedback-report;\r\n" +
	" boundary=\"BOUND2\"\r\n" +
	"MIME-Version: 1.0\r\n" +
	"\r\n" +
	"--BOUND2\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"This is a feedback report.\r\n" +
	"\r\n" +
	"--BOUND2\r\n" +
	"Content-Type: message/feedback-report\r\n" +
	"\r\n" +
	"Feedback-Type: abuse\r\n" +
	"User-Agent: example-fbl/1.0\r\n" +
	"Version: 1\r\n" +
	"\r\n" +
	"--BOUND2\r\n" +
	"Content-Type: message/rfc822-headers\r\n" +
	"\r\n" +
	"From: someone@example.com\r\n" +
	"Subject: complaint\r\n" +
	"\r\n" +
	"--BOUND2--\r\n"

func TestExtractParsesFeedbackReport(t *testing.T) {
	report, err := Extract([]byte(feedbackReportMessage))
	require.NoError(t, err)
	require.NotNil(t, report.FeedbackReport)
	assert.Equal(t, "abuse", report.FeedbackReport.Fields["Feedback-Type"])
	assert.Equal(t, "example-fbl/1.0", report.FeedbackReport.Fields["User-Agent"])
	require.NotNil(t, report.OriginalHeaders)
	assert.Equal(t, []string{"complaint"}, report.OriginalHeaders.Fields["Subject"])
}

func TestExtractFallsBackToWorkMailTechnicalReportMarker(t *testing.T) {
	body := "Your message could not be delivered.\n\n" +
		"Technical report:\n" +
		"Reporting-MTA: dns;mail.awsapps.com\n" +
		"Final-Recipient: rfc822;nobody@example.com\n"

	oh := fallbackWorkMailHeaders(body)
	require.False(t, oh.isEmpty())
	assert.Equal(t, []string{"dns;mail.awsapps.com"}, oh.Fields["Reporting-Mta"])
}
