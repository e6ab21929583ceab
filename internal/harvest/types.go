// Package harvest defines the posting harvest pipeline: discovery, dedup against the
// persisted index, per-posting scraping, and the index and blob write-back phases.
package harvest

import (
	"errors"
	"fmt"
	"time"
)

// FailureSentinel replaces both content fields of a posting that could not be scraped.
const FailureSentinel = "FAILURE"

// BlobKind names the artifact written for a posting.
type BlobKind string

// Artifact kinds uploaded per posting.
const (
	BlobSourceCode BlobKind = "source_code"
	BlobText       BlobKind = "text"
)

// BlobName returns the object name for an identifier and artifact kind.
func BlobName(id string, kind BlobKind) string {
	return fmt.Sprintf("%s_%s.txt", id, kind)
}

// Snapshot is the set of identifiers persisted in the index store at the start of a run.
// Rows counts every row read, including blanks and duplicates, and is the write offset.
type Snapshot struct {
	Rows int
	ids  map[string]struct{}
}

// NewSnapshot builds a Snapshot from the ordered rows returned by an IndexStore.
func NewSnapshot(rows []string) Snapshot {
	ids := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if row == "" {
			continue
		}
		ids[row] = struct{}{}
	}
	return Snapshot{Rows: len(rows), ids: ids}
}

// Contains reports whether id was already harvested.
func (s Snapshot) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Unique returns the number of distinct identifiers.
func (s Snapshot) Unique() int {
	return len(s.ids)
}

// Outcome is the result of scraping one posting: either content or a failure reason.
type Outcome struct {
	raw    string
	text   string
	reason error
}

// Succeeded wraps captured markup and its extracted text.
func Succeeded(raw, text string) Outcome {
	return Outcome{raw: raw, text: text}
}

// Failed records why a posting could not be scraped.
func Failed(reason error) Outcome {
	if reason == nil {
		reason = errors.New("unspecified scrape failure")
	}
	return Outcome{reason: reason}
}

// OK reports whether the posting was scraped.
func (o Outcome) OK() bool {
	return o.reason == nil
}

// Reason returns the failure cause, or nil on success.
func (o Outcome) Reason() error {
	return o.reason
}

// Raw returns the captured markup, or FailureSentinel.
func (o Outcome) Raw() string {
	if !o.OK() {
		return FailureSentinel
	}
	return o.raw
}

// Text returns the extracted text, or FailureSentinel.
func (o Outcome) Text() string {
	if !o.OK() {
		return FailureSentinel
	}
	return o.text
}

// PostingRecord is produced once per new posting and consumed by both write-back phases.
type PostingRecord struct {
	ID      string
	URL     string
	Outcome Outcome
}

// Blob is one artifact pending upload.
type Blob struct {
	Name    string
	Kind    BlobKind
	Content string
}

// Blobs returns the source code and text artifacts, in upload order.
func (r PostingRecord) Blobs() []Blob {
	return []Blob{
		{Name: BlobName(r.ID, BlobSourceCode), Kind: BlobSourceCode, Content: r.Outcome.Raw()},
		{Name: BlobName(r.ID, BlobText), Kind: BlobText, Content: r.Outcome.Text()},
	}
}

// Summary reports the counts of one run.
type Summary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	IndexURL      string    `json:"index_url"`
	SnapshotRows  int       `json:"snapshot_rows"`
	Discovered    int       `json:"discovered"`
	Skipped       int       `json:"skipped"`
	Invalid       int       `json:"invalid"`
	Scraped       int       `json:"scraped"`
	Failed        int       `json:"failed"`
	IndexRows     int       `json:"index_rows"`
	BlobsUploaded int       `json:"blobs_uploaded"`
	BlobFailures  int       `json:"blob_failures"`
	Error         string    `json:"error,omitempty"`
}
