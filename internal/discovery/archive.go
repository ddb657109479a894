package discovery

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Capture is one archived observation of a URL returned by the
// timestamp-indexed archival lookup API.
type Capture struct {
	Timestamp   time.Time
	OriginalURL string
	MimeType    string
	StatusCode  string
	Digest      string
	Length      int64
}

// ArchiveClient queries an archival-snapshot lookup API (CDX-shaped: rows of
// [urlkey, timestamp, original, mimetype, statuscode, digest, length]). It is
// used to reconstruct a vanished dataset's last-known state, not for live
// enumeration.
type ArchiveClient struct {
	baseURL string
	client  *Client
}

func NewArchiveClient(baseURL string, client *Client) *ArchiveClient {
	return &ArchiveClient{baseURL: baseURL, client: client}
}

const cdxTimestampLayout = "20060102150405"

// Captures returns the archived captures of target within [from, to], oldest
// first.
func (a *ArchiveClient) Captures(ctx context.Context, target string, from, to time.Time) ([]Capture, error) {
	q := url.Values{}
	q.Set("url", target)
	q.Set("from", from.UTC().Format(cdxTimestampLayout))
	q.Set("to", to.UTC().Format(cdxTimestampLayout))
	q.Set("output", "json")

	var rows [][]any
	if err := a.client.GetJSON(ctx, a.baseURL+"?"+q.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("failed to query archive for %s: %w", target, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	// First row is the header; map column names to positions since archive
	// deployments disagree on ordering.
	cols := map[string]int{}
	for i, name := range rows[0] {
		if s, ok := name.(string); ok {
			cols[s] = i
		}
	}

	captures := make([]Capture, 0, len(rows)-1)
	for _, row := range rows[1:] {
		c := Capture{
			OriginalURL: stringAt(row, cols, "original"),
			MimeType:    stringAt(row, cols, "mimetype"),
			StatusCode:  stringAt(row, cols, "statuscode"),
			Digest:      stringAt(row, cols, "digest"),
		}
		if ts, err := time.Parse(cdxTimestampLayout, stringAt(row, cols, "timestamp")); err == nil {
			c.Timestamp = ts.UTC()
		}
		captures = append(captures, c)
	}
	return captures, nil
}

// LastCapture returns the most recent capture of target within the range, or
// nil when the archive has none.
func (a *ArchiveClient) LastCapture(ctx context.Context, target string, from, to time.Time) (*Capture, error) {
	captures, err := a.Captures(ctx, target, from, to)
	if err != nil {
		return nil, err
	}
	if len(captures) == 0 {
		return nil, nil
	}
	last := captures[0]
	for _, c := range captures[1:] {
		if c.Timestamp.After(last.Timestamp) {
			last = c
		}
	}
	return &last, nil
}

func stringAt(row []any, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	s, _ := row[i].(string)
	return s
}
