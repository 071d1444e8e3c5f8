package models

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"sort"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// FlagRecent is excluded from flags-hash computation: it is a per-session
// IMAP marker, not part of a message's durable state.
const FlagRecent = "\\Recent"

// FlagsHash computes the deterministic hash of a message's flag set: sort
// the flag strings (custom flags preserved verbatim), drop \Recent, hash the
// joined result. Two flag sets that differ only in order or in \Recent
// membership hash identically.
func FlagsHash(flags []string) uint64 {
	filtered := make([]string, 0, len(flags))
	for _, f := range flags {
		if f == FlagRecent {
			continue
		}
		filtered = append(filtered, f)
	}
	sort.Strings(filtered)

	h := fnv.New64a()
	for i, f := range filtered {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(f))
	}
	return h.Sum64()
}

// DiffFlags returns the flags present in newFlags but not oldFlags (added)
// and vice versa (removed), compared on the string representation of each
// flag.
func DiffFlags(oldFlags, newFlags []string) (added, removed []string) {
	oldSet := make(map[string]struct{}, len(oldFlags))
	for _, f := range oldFlags {
		oldSet[f] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newFlags))
	for _, f := range newFlags {
		newSet[f] = struct{}{}
	}
	for f := range newSet {
		if _, ok := oldSet[f]; !ok {
			added = append(added, f)
		}
	}
	for f := range oldSet {
		if _, ok := newSet[f]; !ok {
			removed = append(removed, f)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// AttachmentDescriptor locates one attachment's content within the
// provider's fetch addressing scheme.
type AttachmentDescriptor struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	MimeType    string `json:"mimeType"`
	Encoding    string `json:"encoding"`
	Size        int64  `json:"size"`
	Inline      bool   `json:"inline"`
	ContentID   string `json:"contentId,omitempty"`
}

// BodyPartType distinguishes a plain-text from an HTML body part.
type BodyPartType string

const (
	BodyPartPlain BodyPartType = "Plain"
	BodyPartHtml  BodyPartType = "Html"
)

// BodyPartDescriptor locates one textual body part.
type BodyPartDescriptor struct {
	Path     string       `json:"path"`
	Type     BodyPartType `json:"type"`
	Charset  string       `json:"charset,omitempty"`
	Encoding string       `json:"encoding"`
	Size     int64        `json:"size"`
}

// Envelope is the rich, header-level record for one mirrored message.
type Envelope struct {
	AccountID string `gorm:"column:account_id;type:varchar(50);primaryKey;uniqueIndex:idx_envelope_key" json:"accountId"`
	FolderID  string `gorm:"column:folder_id;type:varchar(64);primaryKey;uniqueIndex:idx_envelope_key" json:"folderId"`
	// UIDOrMessageID is the IMAP UID (as a string) for ImapSmtp accounts, or
	// the provider message id for GmailApi/GraphApi accounts.
	UIDOrMessageID string `gorm:"column:uid_or_message_id;type:varchar(255);primaryKey;uniqueIndex:idx_envelope_key" json:"uidOrMessageId"`

	InternalDateMs int64  `gorm:"column:internal_date_ms;index" json:"internalDateMs"`
	DateMs         int64  `gorm:"column:date_ms" json:"dateMs"`
	Size           int64  `gorm:"column:size" json:"size"`
	Flags          pq.StringArray `gorm:"column:flags;type:text[]" json:"flags"`
	FlagsHash      uint64 `gorm:"column:flags_hash;index" json:"flagsHash"`

	FromAddresses    pq.StringArray `gorm:"column:from_addresses;type:text[]" json:"fromAddresses"`
	ToAddresses      pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	CcAddresses      pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses"`
	BccAddresses     pq.StringArray `gorm:"column:bcc_addresses;type:text[]" json:"bccAddresses"`
	ReplyToAddresses pq.StringArray `gorm:"column:reply_to_addresses;type:text[]" json:"replyToAddresses"`
	SenderAddresses  pq.StringArray `gorm:"column:sender_addresses;type:text[]" json:"senderAddresses"`

	MessageID  string         `gorm:"column:message_id;type:varchar(998);index" json:"messageId"`
	InReplyTo  string         `gorm:"column:in_reply_to;type:varchar(998)" json:"inReplyTo"`
	References pq.StringArray `gorm:"column:references;type:text[]" json:"references"`
	Subject    string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`

	ThreadID   string `gorm:"column:thread_id;type:varchar(64);index" json:"threadId"`
	ThreadName string `gorm:"column:thread_name;type:varchar(1000)" json:"threadName"`

	Attachments JSONSlice `gorm:"column:attachments;type:jsonb" json:"attachments"`
	BodyParts   JSONSlice `gorm:"column:body_parts;type:jsonb" json:"bodyParts"`

	ReceivedTrace string `gorm:"column:received_trace;type:text" json:"receivedTrace"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Envelope) TableName() string {
	return "sync_envelopes"
}

// SetAttachments re-encodes typed attachment descriptors into the stored
// JSONSlice column.
func (e *Envelope) SetAttachments(descriptors []AttachmentDescriptor) error {
	raw, err := json.Marshal(descriptors)
	if err != nil {
		return err
	}
	var slice JSONSlice
	if err := json.Unmarshal(raw, &slice); err != nil {
		return err
	}
	e.Attachments = slice
	return nil
}

// GetAttachments decodes the stored JSONSlice column into typed descriptors.
func (e *Envelope) GetAttachments() ([]AttachmentDescriptor, error) {
	raw, err := json.Marshal(e.Attachments)
	if err != nil {
		return nil, err
	}
	var descriptors []AttachmentDescriptor
	if err := json.Unmarshal(raw, &descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// SetBodyParts re-encodes typed body-part descriptors into the stored
// JSONSlice column.
func (e *Envelope) SetBodyParts(descriptors []BodyPartDescriptor) error {
	raw, err := json.Marshal(descriptors)
	if err != nil {
		return err
	}
	var slice JSONSlice
	if err := json.Unmarshal(raw, &slice); err != nil {
		return err
	}
	e.BodyParts = slice
	return nil
}

// GetBodyParts decodes the stored JSONSlice column into typed descriptors.
func (e *Envelope) GetBodyParts() ([]BodyPartDescriptor, error) {
	raw, err := json.Marshal(e.BodyParts)
	if err != nil {
		return nil, err
	}
	var descriptors []BodyPartDescriptor
	if err := json.Unmarshal(raw, &descriptors); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// EnvelopeMinimal is the row kept for every mirrored message; the only row
// kept for accounts with MinimalSync enabled. Every rich Envelope has a
// matching EnvelopeMinimal with an equal FlagsHash (store invariant).
type EnvelopeMinimal struct {
	AccountID      string `gorm:"column:account_id;type:varchar(50);primaryKey;uniqueIndex:idx_envelope_minimal_key" json:"accountId"`
	FolderID       string `gorm:"column:folder_id;type:varchar(64);primaryKey;uniqueIndex:idx_envelope_minimal_key" json:"folderId"`
	UID            uint32 `gorm:"column:uid;primaryKey;uniqueIndex:idx_envelope_minimal_key" json:"uid"`
	FlagsHash      uint64 `gorm:"column:flags_hash" json:"flagsHash"`
}

func (EnvelopeMinimal) TableName() string {
	return "sync_envelopes_minimal"
}

// Thread keeps the newest message of a set of messages sharing a root
// references[0] or message-id.
type Thread struct {
	ThreadID              string    `gorm:"column:thread_id;type:varchar(64);primaryKey" json:"threadId"`
	RepresentativeEnvelopeID string `gorm:"column:representative_envelope_id;type:varchar(255);not null" json:"representativeEnvelopeId"`
	AccountID             string    `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	FolderID              string    `gorm:"column:folder_id;type:varchar(64);index;not null" json:"folderId"`
	NewestInternalDateMs  int64     `gorm:"column:newest_internal_date_ms" json:"newestInternalDateMs"`
	NewestDateMs          int64     `gorm:"column:newest_date_ms" json:"newestDateMs"`
	UpdatedAt             time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Thread) TableName() string {
	return "sync_threads"
}

// ThreadIDFor computes the thread key for an envelope: the hash of its
// first reference if it has one, else the hash of its own message id, else
// a fresh random id (a message with neither References nor Message-Id
// starts its own singleton thread).
func ThreadIDFor(references []string, messageID string) string {
	switch {
	case len(references) > 0 && references[0] != "":
		return "thrd_" + formatHex(fnvSum(references[0]))
	case messageID != "":
		return "thrd_" + formatHex(fnvSum(messageID))
	default:
		return "thrd_" + randomHex128()
	}
}

func fnvSum(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func randomHex128() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// AddressRow is extracted from each rich envelope for address-book search.
type AddressRow struct {
	ID                string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID         string `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`
	FolderID          string `gorm:"column:folder_id;type:varchar(64);index;not null" json:"folderId"`
	NormalizedAddress string `gorm:"column:normalized_address;type:varchar(320);index;not null" json:"normalizedAddress"`
	EnvelopeID        string `gorm:"column:envelope_id;type:varchar(255);index;not null" json:"envelopeId"`
}

func (AddressRow) TableName() string {
	return "sync_address_rows"
}

func (a *AddressRow) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = addressRowID(a.AccountID, a.FolderID, a.NormalizedAddress, a.EnvelopeID)
	}
	return nil
}

func addressRowID(parts ...string) string {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return "addr_" + formatHex(h.Sum64())
}

func formatHex(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
