package model

import (
	"strings"
	"time"
)

// Node labels.
const (
	LabelDocument = "Document"
	LabelRevision = "Revision"
	LabelContent  = "Content"
)

// Unique key property per label.
const (
	KeyDocument = "title"
	KeyRevision = "revision_id"
	KeyContent  = "hash"
)

// RawRevision is one record of a document history as delivered by a revision
// source. Text is nil when the source could not supply the content (hidden or
// suppressed revisions).
type RawRevision struct {
	ID        int64
	Timestamp time.Time
	Text      *string
}

type Document struct {
	Title      string    `json:"title"`
	ImportedAt time.Time `json:"imported_at"`
	ImportRun  string    `json:"import_run"`
}

func (d Document) Properties() map[string]interface{} {
	return map[string]interface{}{
		"title":       d.Title,
		"imported_at": d.ImportedAt.UTC().Format(time.RFC3339),
		"import_run":  d.ImportRun,
	}
}

type Revision struct {
	ID        int64     `json:"revision_id"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Quality   *float64  `json:"quality,omitempty"`
}

func (r Revision) Properties() map[string]interface{} {
	props := map[string]interface{}{
		"revision_id": r.ID,
	}
	if !r.Timestamp.IsZero() {
		props["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339)
	}
	if r.Quality != nil {
		props["quality"] = *r.Quality
	}
	return props
}

// Content is one distinct body of document text, identified by the digest of
// its raw text.
type Content struct {
	Hash      string `json:"hash"`
	RawText   string `json:"raw_text"`
	PlainText string `json:"plain_text"`
}

func (c Content) Properties() map[string]interface{} {
	return map[string]interface{}{
		"hash":       c.Hash,
		"raw_text":   c.RawText,
		"plain_text": c.PlainText,
	}
}

// NormalizeTitle converts a slug ("Splendid_fairywren") into the display
// form used as the Document key ("Splendid fairywren").
func NormalizeTitle(title string) string {
	return strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
}
