// Package jobs defines the migrations crm-migrate knows how to run.
package jobs

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BartekS5/crm-migrate/internal/etl"
	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/BartekS5/crm-migrate/pkg/models"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/BartekS5/crm-migrate/pkg/utils"
	"github.com/jhillyerd/enmime"
)

const (
	// maxRawSize bounds the raw MIME content EmailSplit will parse.
	maxRawSize = 25 * 1024 * 1024

	defaultSnippetLength = 200

	emailKeyColumn   = "id"
	emailScopeColumn = "created_at"
	messageIDColumn  = "message_id"
)

var (
	htmlTag    = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// EmailSplit splits a row of the emails table into an email_index record
// with the listing fields and an email_cache record with the bodies, both
// keyed by message_id.
type EmailSplit struct {
	SnippetLength int
}

func (s EmailSplit) Transform(src etl.SourceRecord) ([]etl.DestinationRecord, error) {
	row := ParseEmailRow(src.Key, src.Row)
	if row.MessageID == "" {
		return nil, etl.Skip("missing message_id")
	}

	bodyText, bodyHTML := row.BodyText, row.BodyHTML
	if bodyText == "" && bodyHTML == "" && row.RawContent != "" {
		bodyText, bodyHTML = bodiesFromMIME(row.RawContent)
	}

	received := row.ReceivedAt
	if received.IsZero() {
		received = row.CreatedAt
	}

	n := s.SnippetLength
	if n <= 0 {
		n = defaultSnippetLength
	}
	index := models.EmailIndex{
		MessageID:   row.MessageID,
		SourceID:    utils.ToString(row.ID),
		AccountID:   row.AccountID,
		UserID:      row.UserID,
		Subject:     row.Subject,
		FromAddress: row.FromAddress,
		ToAddresses: row.ToAddresses,
		Snippet:     snippet(bodyText, bodyHTML, n),
		HasBody:     bodyText != "" || bodyHTML != "",
		ReceivedAt:  received.UTC(),
	}
	cache := models.EmailCache{
		MessageID: row.MessageID,
		BodyText:  bodyText,
		BodyHTML:  bodyHTML,
		SizeBytes: int64(len(bodyText) + len(bodyHTML)),
	}

	return []etl.DestinationRecord{
		{
			Table:     models.EmailIndexTable,
			KeyColumn: messageIDColumn,
			Key:       row.MessageID,
			Op:        etl.OpUpsert,
			Fields:    index.Fields(),
			SourceKey: src.Key,
		},
		{
			Table:     models.EmailCacheTable,
			KeyColumn: messageIDColumn,
			Key:       row.MessageID,
			Op:        etl.OpUpsert,
			Fields:    cache.Fields(),
			SourceKey: src.Key,
		},
	}, nil
}

// ParseEmailRow reads the known columns of an emails row. Missing or null
// columns become zero values.
func ParseEmailRow(id interface{}, row store.Row) models.EmailRow {
	return models.EmailRow{
		ID:          id,
		MessageID:   strings.TrimSpace(utils.ToString(row["message_id"])),
		AccountID:   utils.ToString(row["account_id"]),
		UserID:      utils.ToString(row["user_id"]),
		Subject:     utils.ToString(row["subject"]),
		FromAddress: utils.ToString(row["from_address"]),
		ToAddresses: addressList(row["to_addresses"]),
		ReceivedAt:  utils.TimeOf(row["received_at"]),
		CreatedAt:   utils.TimeOf(row["created_at"]),
		BodyText:    utils.ToString(row["body_text"]),
		BodyHTML:    utils.ToString(row["body_html"]),
		RawContent:  utils.ToString(row["raw_content"]),
	}
}

// addressList flattens array columns (JSON arrays, Postgres text[] literals)
// into a comma separated list.
func addressList(v interface{}) string {
	switch t := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, utils.ToString(p))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	}
	s := utils.ToString(v)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		inner := strings.Trim(s[1:len(s)-1], " ")
		if inner == "" {
			return ""
		}
		parts := strings.Split(inner, ",")
		for i, p := range parts {
			parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
		}
		return strings.Join(parts, ", ")
	}
	return s
}

// bodiesFromMIME extracts the text and HTML bodies from raw MIME content.
// Unparseable or oversized content yields empty bodies.
func bodiesFromMIME(raw string) (string, string) {
	if len(raw) > maxRawSize {
		return "", ""
	}
	env, err := enmime.ReadEnvelope(strings.NewReader(raw))
	if err != nil {
		logger.Debugf("raw_content is not parseable MIME: %v", err)
		return "", ""
	}
	return strings.TrimSpace(env.Text), env.HTML
}

func snippet(text, html string, n int) string {
	src := text
	if src == "" {
		src = htmlTag.ReplaceAllString(html, " ")
	}
	src = strings.TrimSpace(whitespace.ReplaceAllString(src, " "))
	if utf8.RuneCountInString(src) <= n {
		return src
	}
	runes := []rune(src)
	return strings.TrimSpace(string(runes[:n]))
}

// EmailsJob splits emails into email_index and email_cache. With since set,
// only rows created at or after it are migrated.
func EmailsJob(since time.Time) etl.Job {
	return etl.Job{
		Name:     "emails",
		Source:   models.EmailsTable,
		OrderKey: emailKeyColumn,
		Filter:   sinceFilter(since),
		Targets: []etl.Target{
			{Table: models.EmailIndexTable, KeyColumn: messageIDColumn, Op: etl.OpUpsert},
			{Table: models.EmailCacheTable, KeyColumn: messageIDColumn, Op: etl.OpUpsert},
		},
		Transformer: EmailSplit{},
	}
}

func sinceFilter(since time.Time) *store.Filter {
	if since.IsZero() {
		return nil
	}
	return &store.Filter{Column: emailScopeColumn, Since: since}
}
