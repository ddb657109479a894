package discovery

import (
	"context"
)

// DataJSONSource enumerates one data.json-shaped inventory endpoint, either
// a central inventory or an agency-specific feed. data.json documents are
// single-page, so the next cursor is always empty.
type DataJSONSource struct {
	name   string
	url    string
	client *Client
}

func NewDataJSONSource(name, url string, client *Client) *DataJSONSource {
	return &DataJSONSource{name: name, url: url, client: client}
}

func (s *DataJSONSource) Name() string { return s.name }

type dataJSONDocument struct {
	Dataset []dataJSONEntry `json:"dataset"`
}

type dataJSONEntry struct {
	Type       string `json:"@type"`
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	Publisher  struct {
		Name string `json:"name"`
	} `json:"publisher"`
	License      string `json:"license"`
	Modified     string `json:"modified"`
	LandingPage  string `json:"landingPage"`
	Distribution []struct {
		Format      string `json:"format"`
		MediaType   string `json:"mediaType"`
		DownloadURL string `json:"downloadURL"`
	} `json:"distribution"`
}

func (s *DataJSONSource) FetchCatalogPage(ctx context.Context, cursor string) ([]RawDatasetRecord, string, error) {
	if cursor != "" {
		return nil, "", nil
	}

	var doc dataJSONDocument
	if err := s.client.GetJSON(ctx, s.url, &doc); err != nil {
		return nil, "", err
	}

	records := make([]RawDatasetRecord, 0, len(doc.Dataset))
	for _, entry := range doc.Dataset {
		rec := RawDatasetRecord{
			Identifier:   entry.Identifier,
			Type:         entry.Type,
			Title:        entry.Title,
			Agency:       entry.Publisher.Name,
			License:      entry.License,
			LastModified: entry.Modified,
			LandingURL:   entry.LandingPage,
		}
		if len(entry.Distribution) > 0 {
			dist := entry.Distribution[0]
			rec.Format = dist.Format
			if rec.Format == "" {
				rec.Format = dist.MediaType
			}
			if dist.DownloadURL != "" {
				rec.LandingURL = dist.DownloadURL
			}
		}
		records = append(records, rec)
	}
	return records, "", nil
}
