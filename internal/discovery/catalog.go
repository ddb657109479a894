package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

const catalogPageSize = 100

// CatalogSource enumerates a CKAN-style catalog search API, paged by
// offset/rows. The cursor is the numeric offset of the next page.
type CatalogSource struct {
	name    string
	baseURL string
	client  *Client
}

func NewCatalogSource(name, baseURL string, client *Client) *CatalogSource {
	return &CatalogSource{name: name, baseURL: baseURL, client: client}
}

func (s *CatalogSource) Name() string { return s.name }

type catalogSearchResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Count   int              `json:"count"`
		Results []catalogPackage `json:"results"`
	} `json:"result"`
}

type catalogPackage struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Organization struct {
		Title string `json:"title"`
	} `json:"organization"`
	LicenseTitle     string `json:"license_title"`
	LicenseURL       string `json:"license_url"`
	MetadataModified string `json:"metadata_modified"`
	Resources        []struct {
		Format string `json:"format"`
		URL    string `json:"url"`
	} `json:"resources"`
}

func (s *CatalogSource) FetchCatalogPage(ctx context.Context, cursor string) ([]RawDatasetRecord, string, error) {
	offset := 0
	if cursor != "" {
		var err error
		offset, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid catalog cursor %q: %w", cursor, err)
		}
	}

	q := url.Values{}
	q.Set("start", strconv.Itoa(offset))
	q.Set("rows", strconv.Itoa(catalogPageSize))
	pageURL := s.baseURL + "/api/3/action/package_search?" + q.Encode()

	var resp catalogSearchResponse
	if err := s.client.GetJSON(ctx, pageURL, &resp); err != nil {
		return nil, "", err
	}
	if !resp.Success {
		return nil, "", fmt.Errorf("catalog search reported failure at offset %d", offset)
	}

	records := make([]RawDatasetRecord, 0, len(resp.Result.Results))
	for _, pkg := range resp.Result.Results {
		rec := RawDatasetRecord{
			Identifier:   pkg.ID,
			Title:        pkg.Title,
			Agency:       pkg.Organization.Title,
			License:      pkg.LicenseTitle,
			LastModified: pkg.MetadataModified,
		}
		if rec.License == "" {
			rec.License = pkg.LicenseURL
		}
		if len(pkg.Resources) > 0 {
			rec.Format = pkg.Resources[0].Format
			rec.LandingURL = pkg.Resources[0].URL
		}
		records = append(records, rec)
	}

	next := ""
	if offset+len(records) < resp.Result.Count && len(records) > 0 {
		next = strconv.Itoa(offset + len(records))
	}
	return records, next, nil
}
