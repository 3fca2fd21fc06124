// Package zotero reads a Zotero library through the Zotero web API.
package zotero

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pnhp/nha-sync/internal/domain"
)

const (
	apiVersion = "3"
	pageSize   = 100
)

// Client implements the library source and citation formatter against the
// Zotero API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	library    string
	apiKey     string
	delay      time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a client for one library. libraryType is "groups" or
// "users"; delay is waited before every citation request.
func NewClient(baseURL, libraryType, libraryID, apiKey string, timeout, delay time.Duration, clock clockwork.Clock, logger *slog.Logger) *Client {
	libraryType = strings.ToLower(strings.TrimSpace(libraryType))
	if !strings.HasSuffix(libraryType, "s") {
		libraryType += "s"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		library:    libraryType + "/" + url.PathEscape(libraryID),
		apiKey:     apiKey,
		delay:      delay,
		clock:      clock,
		logger:     logger.With("component", "zotero"),
	}
}

// Zotero API response types.

type item struct {
	Key  string   `json:"key"`
	Meta itemMeta `json:"meta"`
	Data itemData `json:"data"`
}

type itemMeta struct {
	CreatorSummary string `json:"creatorSummary"`
	ParsedDate     string `json:"parsedDate"`
}

type itemData struct {
	ItemType         string    `json:"itemType"`
	Title            string    `json:"title"`
	AbstractNote     string    `json:"abstractNote"`
	PublicationTitle string    `json:"publicationTitle"`
	Volume           string    `json:"volume"`
	Issue            string    `json:"issue"`
	Pages            string    `json:"pages"`
	URL              string    `json:"url"`
	Creators         []creator `json:"creators"`
}

type creator struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (it item) toBibItem() domain.BibItem {
	creators := make([]domain.Creator, 0, len(it.Data.Creators))
	for _, c := range it.Data.Creators {
		creators = append(creators, domain.Creator{FirstName: c.FirstName, LastName: c.LastName})
	}
	return domain.BibItem{
		Key:              it.Key,
		ItemType:         it.Data.ItemType,
		Title:            it.Data.Title,
		CreatorSummary:   it.Meta.CreatorSummary,
		ParsedDate:       it.Meta.ParsedDate,
		PublicationTitle: it.Data.PublicationTitle,
		Volume:           it.Data.Volume,
		Issue:            it.Data.Issue,
		Pages:            it.Data.Pages,
		URL:              it.Data.URL,
		AbstractNote:     it.Data.AbstractNote,
		Creators:         creators,
	}
}

// Items fetches every item of the library, following the next links page by
// page. When a page fails the items read so far are returned with the error.
func (c *Client) Items(ctx context.Context) ([]domain.BibItem, error) {
	next := fmt.Sprintf("%s/%s/items?limit=%d", c.baseURL, c.library, pageSize)
	var out []domain.BibItem
	pages := 0
	for next != "" {
		var page []item
		header, err := c.get(ctx, next, &page)
		if err != nil {
			c.logger.Error("library page failed", "url", next, "items", len(out), "error", err)
			return out, fmt.Errorf("fetch library page %d: %w", pages+1, err)
		}
		for _, it := range page {
			out = append(out, it.toBibItem())
		}
		pages++
		next = nextLink(header.Get("Link"))
	}
	c.logger.Info("library fetched", "items", len(out), "pages", pages)
	return out, nil
}

// Citation returns the APA bibliography entry of an item as HTML.
func (c *Client) Citation(ctx context.Context, key string) (string, error) {
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-c.clock.After(c.delay):
		}
	}
	u := fmt.Sprintf("%s/%s/items/%s?%s", c.baseURL, c.library, url.PathEscape(key), url.Values{
		"format":  {"json"},
		"include": {"bib"},
		"style":   {"apa"},
	}.Encode())
	var resp struct {
		Bib string `json:"bib"`
	}
	if _, err := c.get(ctx, u, &resp); err != nil {
		return "", fmt.Errorf("citation %s: %w", key, err)
	}
	bib := strings.TrimSpace(resp.Bib)
	if bib == "" {
		return "", fmt.Errorf("citation %s: %w", key, domain.ErrNotFound)
	}
	return bib, nil
}

func (c *Client) get(ctx context.Context, u string, dst any) (http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Zotero-API-Version", apiVersion)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Zotero-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("zotero request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("zotero API error: status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return resp.Header, nil
}

// nextLink extracts the rel="next" target of a Link header.
func nextLink(header string) string {
	for _, link := range strings.Split(header, ",") {
		target, params, ok := strings.Cut(link, ";")
		if !ok || !strings.Contains(params, `rel="next"`) {
			continue
		}
		return strings.Trim(strings.TrimSpace(target), "<>")
	}
	return ""
}
