package bounce

import (
	"bufio"
	"bytes"
	"net/mail"
	"net/textproto"
	"strings"

	"github.com/jhillyerd/enmime"
)

const workMailTechnicalReportMarker = "technical report:"

// Extract parses a full RFC 822 message and pulls out delivery-status,
// feedback-report, and original-headers evidence. It is only called after
// Classify has already returned true for the message's header-only fetch;
// Extract does not re-check the subject.
func Extract(raw []byte) (*Report, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	report := &Report{}

	for _, part := range flattenParts(envelope.Root) {
		ct := strings.ToLower(part.ContentType)
		switch {
		case strings.HasSuffix(ct, "delivery-status"):
			if ds := parseDeliveryStatus(part.Content); !ds.isEmpty() {
				report.DeliveryStatus = ds
			}
		case strings.HasSuffix(ct, "feedback-report"):
			if fr := parseFeedbackReport(part.Content); !fr.isEmpty() {
				report.FeedbackReport = fr
			}
		case strings.HasSuffix(ct, "rfc822-headers"), strings.HasSuffix(ct, "rfc822"):
			if oh := parseOriginalHeaders(part.Content); !oh.isEmpty() {
				report.OriginalHeaders = oh
			}
		}
	}

	if report.OriginalHeaders.isEmpty() {
		if oh := fallbackWorkMailHeaders(envelope.Text); !oh.isEmpty() {
			report.OriginalHeaders = oh
		} else if oh := fallbackWorkMailHeaders(envelope.HTML); !oh.isEmpty() {
			report.OriginalHeaders = oh
		}
	}

	return report, nil
}

// flattenParts walks the MIME part tree (including the part itself) and
// returns every part in it, since the delivery-status/feedback-report/rfc822
// evidence can appear at any depth under the outer multipart/report.
func flattenParts(p *enmime.Part) []*enmime.Part {
	if p == nil {
		return nil
	}
	parts := []*enmime.Part{p}
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		parts = append(parts, flattenParts(child)...)
	}
	return parts
}

// parseDeliveryStatus reads the RFC 3464 per-message block followed by the
// per-recipient block (the two are blank-line separated) and merges their
// fields onto a single DeliveryStatus, since this classifier only deals with
// single-recipient bounce events.
func parseDeliveryStatus(content []byte) *DeliveryStatus {
	ds := &DeliveryStatus{Postfix: map[string]string{}}

	reader := textproto.NewReader(bufio.NewReader(bytes.NewReader(content)))
	for {
		header, err := reader.ReadMIMEHeader()
		if len(header) == 0 {
			break
		}
		applyDeliveryStatusFields(ds, header)
		if err != nil {
			break
		}
	}
	return ds
}

func applyDeliveryStatusFields(ds *DeliveryStatus, header textproto.MIMEHeader) {
	if v := header.Get("Final-Recipient"); v != "" {
		ds.FinalRecipient = v
	}
	if v := header.Get("Original-Recipient"); v != "" {
		ds.OriginalRecipient = v
	}
	if v := header.Get("Action"); v != "" {
		ds.Action = v
	}
	if v := header.Get("Status"); v != "" {
		ds.Status = v
	}
	if v := header.Get("Remote-MTA"); v != "" {
		ds.RemoteMTA = v
	}
	if v := header.Get("Reporting-MTA"); v != "" {
		ds.ReportingMTA = v
	}
	if v := header.Get("Received-From-MTA"); v != "" {
		ds.ReceivedFromMTA = v
	}
	if v := header.Get("Arrival-Date"); v != "" {
		ds.ArrivalDate = v
	}
	if v := header.Get("X-Original-Message-Id"); v != "" {
		ds.OriginalMessageID = v
	}
	if v := header.Get("Diagnostic-Code"); v != "" {
		typ, code, found := strings.Cut(v, ";")
		if found {
			ds.DiagnosticCodeType = strings.TrimSpace(typ)
			ds.DiagnosticCode = strings.TrimSpace(code)
		} else {
			ds.DiagnosticCode = strings.TrimSpace(v)
		}
	}
	for key, values := range header {
		if strings.HasPrefix(strings.ToLower(key), "x-postfix-") && len(values) > 0 {
			ds.Postfix[key[len("x-postfix-"):]] = values[0]
		}
	}
}

func parseFeedbackReport(content []byte) *FeedbackReport {
	header, _ := textproto.NewReader(bufio.NewReader(bytes.NewReader(content))).ReadMIMEHeader()
	if len(header) == 0 {
		return &FeedbackReport{}
	}
	fields := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return &FeedbackReport{Fields: fields}
}

func parseOriginalHeaders(content []byte) *OriginalHeaders {
	if len(bytes.TrimSpace(content)) == 0 {
		return &OriginalHeaders{}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(content))
	if err != nil {
		header, readErr := textproto.NewReader(bufio.NewReader(bytes.NewReader(content))).ReadMIMEHeader()
		if readErr != nil && len(header) == 0 {
			return &OriginalHeaders{}
		}
		return &OriginalHeaders{Raw: string(content), Fields: map[string][]string(header)}
	}

	return &OriginalHeaders{Raw: string(content), Fields: map[string][]string(msg.Header)}
}

// fallbackWorkMailHeaders handles Amazon WorkMail's bounce format, which
// doesn't emit a message/rfc822 part but instead embeds the original
// headers as plain text after a "technical report:" marker.
func fallbackWorkMailHeaders(body string) *OriginalHeaders {
	lower := strings.ToLower(body)
	idx := strings.Index(lower, workMailTechnicalReportMarker)
	if idx < 0 {
		return &OriginalHeaders{}
	}
	raw := strings.TrimSpace(body[idx+len(workMailTechnicalReportMarker):])
	if raw == "" {
		return &OriginalHeaders{}
	}
	header, _ := textproto.NewReader(bufio.NewReader(strings.NewReader(raw))).ReadMIMEHeader()
	return &OriginalHeaders{Raw: raw, Fields: map[string][]string(header)}
}
