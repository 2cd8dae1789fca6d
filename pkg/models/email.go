package models

import "time"

// Table names used by the email jobs.
const (
	EmailsTable     = "emails"
	EmailIndexTable = "email_index"
	EmailCacheTable = "email_cache"
)

// EmailRow is a row of the legacy emails table. Only ID and MessageID are
// mandatory; everything else may be missing in older rows.
type EmailRow struct {
	ID          interface{}
	MessageID   string
	AccountID   string
	UserID      string
	Subject     string
	FromAddress string
	ToAddresses string
	ReceivedAt  time.Time
	CreatedAt   time.Time
	BodyText    string
	BodyHTML    string
	RawContent  string
}

// EmailIndex is the lightweight listing record, keyed by message_id.
type EmailIndex struct {
	MessageID   string    `json:"message_id" bson:"message_id"`
	SourceID    string    `json:"source_id" bson:"source_id"`
	AccountID   string    `json:"account_id" bson:"account_id"`
	UserID      string    `json:"user_id" bson:"user_id"`
	Subject     string    `json:"subject" bson:"subject"`
	FromAddress string    `json:"from_address" bson:"from_address"`
	ToAddresses string    `json:"to_addresses" bson:"to_addresses"`
	Snippet     string    `json:"snippet" bson:"snippet"`
	HasBody     bool      `json:"has_body" bson:"has_body"`
	ReceivedAt  time.Time `json:"received_at" bson:"received_at"`
}

// EmailCache holds the heavy body content, keyed by message_id.
type EmailCache struct {
	MessageID string `json:"message_id" bson:"message_id"`
	BodyText  string `json:"body_text" bson:"body_text"`
	BodyHTML  string `json:"body_html" bson:"body_html"`
	SizeBytes int64  `json:"size_bytes" bson:"size_bytes"`
}

func (e EmailIndex) Fields() map[string]interface{} {
	return map[string]interface{}{
		"message_id":   e.MessageID,
		"source_id":    e.SourceID,
		"account_id":   e.AccountID,
		"user_id":      e.UserID,
		"subject":      e.Subject,
		"from_address": e.FromAddress,
		"to_addresses": e.ToAddresses,
		"snippet":      e.Snippet,
		"has_body":     e.HasBody,
		"received_at":  e.ReceivedAt,
	}
}

func (e EmailCache) Fields() map[string]interface{} {
	return map[string]interface{}{
		"message_id": e.MessageID,
		"body_text":  e.BodyText,
		"body_html":  e.BodyHTML,
		"size_bytes": e.SizeBytes,
	}
}
