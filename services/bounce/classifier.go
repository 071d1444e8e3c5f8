// Package bounce implements the bounce/feedback-report classifier that
// inspects a newly-arrived message before the reconciler decides whether to
// fetch the full RFC 822 source and enqueue an EmailBounce or
// EmailFeedBackReport event.
package bounce

import (
	"strconv"
	"strings"

	imap "github.com/emersion/go-imap"
)

// bounceParts are the MIME subtypes that mark a part of a multipart/report
// structure as bounce/feedback evidence.
var bounceParts = map[string]struct{}{
	"delivery-status":  {},
	"rfc822-headers":   {},
	"rfc822":           {},
	"feedback-report":  {},
}

// bounceSubjectPhrases are matched case-insensitively against the message
// subject. An empty subject never classifies as a bounce.
var bounceSubjectPhrases = []string{
	"mail delivery failure",
	"mail delivery subsystem",
	"undelivered mail returned to sender",
	"delivery status notification",
	"undeliverable",
	"undelivered",
	"delivery failure",
	"failure notice",
	"returned mail",
	"returned to sender",
}

// IsBounceSubject reports whether subject matches one of the known bounce
// phrases. An empty subject is treated as non-bounce.
func IsBounceSubject(subject string) bool {
	if subject == "" {
		return false
	}
	lower := strings.ToLower(subject)
	for _, phrase := range bounceSubjectPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// HasBounceEvidence walks the bodystructure tree collecting parts whose MIME
// subtype marks them as delivery-status, feedback-report, or embedded
// original-message evidence, and reports whether at least one was found.
func HasBounceEvidence(bs *imap.BodyStructure) bool {
	return len(CollectBounceParts(bs, nil)) > 0
}

// CollectBounceParts walks the bodystructure tree and returns the
// dot-separated part paths (IMAP section addressing, 1-indexed) of every
// part whose MIME subtype is delivery-status, rfc822-headers, rfc822, or
// feedback-report.
func CollectBounceParts(bs *imap.BodyStructure, path []int) []string {
	if bs == nil {
		return nil
	}

	var found []string
	if _, ok := bounceParts[strings.ToLower(bs.MIMESubType)]; ok {
		found = append(found, partPath(path))
	}

	for i, part := range bs.Parts {
		childPath := make([]int, len(path), len(path)+1)
		copy(childPath, path)
		childPath = append(childPath, i+1)
		found = append(found, CollectBounceParts(part, childPath)...)
	}
	return found
}

func partPath(path []int) string {
	if len(path) == 0 {
		return "1"
	}
	segs := make([]string, len(path))
	for i, p := range path {
		segs[i] = strconv.Itoa(p)
	}
	return strings.Join(segs, ".")
}

// Classify applies the classifier's two-condition rule: the message is a
// bounce candidate only if the subject looks bounce-like AND the
// bodystructure contains at least one delivery-status/feedback-report/
// embedded-original part. Either signal alone is not sufficient: plenty of
// legitimate mail has a "delivery" subject, and plenty of unrelated
// multipart messages embed a message/rfc822 part (forwards, digests).
func Classify(subject string, bs *imap.BodyStructure) bool {
	return IsBounceSubject(subject) && HasBounceEvidence(bs)
}
