package zotero

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnhp/nha-sync/internal/domain"
)

const (
	baseURL  = "https://api.zotero.org"
	itemsURL = baseURL + "/groups/2166223/items"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestClient(apiKey string, delay time.Duration, clock clockwork.Clock) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(baseURL, "group", "2166223", apiKey, 5*time.Second, delay, clock, logger)
}

func pageResponder(t *testing.T, body, link string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "3", req.Header.Get("Zotero-API-Version"))
		resp := httpmock.NewStringResponse(http.StatusOK, body)
		resp.Header = http.Header{"Content-Type": {"application/json"}}
		if link != "" {
			resp.Header.Set("Link", link)
		}
		return resp, nil
	}
}

const firstPage = `[
  {"key": "ABC", "meta": {"creatorSummary": "Moore and Smith", "parsedDate": "2019-04-01"},
   "data": {"itemType": "journalArticle", "title": "Bog turtles", "publicationTitle": "Herpetologica",
            "volume": "12", "issue": "3", "pages": "1-9", "url": "https://example.org/a",
            "creators": [{"firstName": "Molly", "lastName": "Moore"}, {"firstName": "Ann", "lastName": "Smith"}]}},
  {"key": "NOTE1", "meta": {}, "data": {"itemType": "note"}}
]`

const secondPage = `[
  {"key": "DEF", "meta": {"parsedDate": "2001"}, "data": {"itemType": "report", "title": "Fens of PA"}}
]`

func TestClient_ItemsFollowsNextLinks(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL, "limit=100",
		pageResponder(t, firstPage, `<`+itemsURL+`?limit=100&start=100>; rel="next", <`+itemsURL+`?limit=100&start=100>; rel="last"`))
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL, "limit=100&start=100",
		pageResponder(t, secondPage, `<`+itemsURL+`?limit=100>; rel="first"`))

	items, err := newTestClient("", 0, clockwork.NewFakeClock()).Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, domain.BibItem{
		Key:              "ABC",
		ItemType:         "journalArticle",
		Title:            "Bog turtles",
		CreatorSummary:   "Moore and Smith",
		ParsedDate:       "2019-04-01",
		PublicationTitle: "Herpetologica",
		Volume:           "12",
		Issue:            "3",
		Pages:            "1-9",
		URL:              "https://example.org/a",
		Creators:         []domain.Creator{{FirstName: "Molly", LastName: "Moore"}, {FirstName: "Ann", LastName: "Smith"}},
	}, items[0])
	assert.Equal(t, "DEF", items[2].Key)
	assert.Equal(t, 2, httpmock.GetTotalCallCount())

	entries := domain.NormalizeBibItems(items)
	require.Len(t, entries, 2)
	assert.Equal(t, "Moore, Molly, Smith, Ann", *entries[0].Authors)
	assert.Equal(t, "2019", *entries[0].PublicationYear)
}

func TestClient_ItemsKeepsPagesBeforeFailure(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL, "limit=100",
		pageResponder(t, firstPage, `<`+itemsURL+`?limit=100&start=100>; rel="next"`))
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL, "limit=100&start=100",
		httpmock.NewStringResponder(http.StatusInternalServerError, "upstream down"))

	items, err := newTestClient("", 0, clockwork.NewFakeClock()).Items(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.Len(t, items, 2)
}

func TestClient_Citation(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL+"/ABC", "format=json&include=bib&style=apa",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.Header.Get("Zotero-API-Key"))
			return httpmock.NewStringResponse(http.StatusOK,
				`{"key": "ABC", "bib": "<div class=\"csl-bib-body\">Moore, M. (2019). Bog turtles.</div>\n"}`), nil
		})
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL+"/EMPTY", "format=json&include=bib&style=apa",
		httpmock.NewStringResponder(http.StatusOK, `{"key": "EMPTY", "bib": ""}`))
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL+"/GONE", "format=json&include=bib&style=apa",
		httpmock.NewStringResponder(http.StatusNotFound, "Not found"))

	client := newTestClient("secret", 0, clockwork.NewFakeClock())
	ctx := context.Background()

	bib, err := client.Citation(ctx, "ABC")
	require.NoError(t, err)
	assert.Equal(t, `<div class="csl-bib-body">Moore, M. (2019). Bog turtles.</div>`, bib)

	_, err = client.Citation(ctx, "EMPTY")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = client.Citation(ctx, "GONE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_CitationWaitsDelay(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponderWithQuery(http.MethodGet, itemsURL+"/ABC", "format=json&include=bib&style=apa",
		httpmock.NewStringResponder(http.StatusOK, `{"bib": "entry"}`))

	clock := clockwork.NewFakeClock()
	client := newTestClient("", 5*time.Second, clock)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		bib, _ := client.Citation(ctx, "ABC")
		done <- bib
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, 0, httpmock.GetTotalCallCount())
	clock.Advance(5 * time.Second)

	select {
	case bib := <-done:
		assert.Equal(t, "entry", bib)
	case <-ctx.Done():
		t.Fatal("citation did not return after the delay")
	}
}

func TestClient_CitationCancelledDuringDelay(t *testing.T) {
	client := newTestClient("", time.Minute, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Citation(ctx, "ABC")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"empty", "", ""},
		{"next first", `<https://a/items?start=100>; rel="next", <https://a/items?start=900>; rel="last"`, "https://a/items?start=100"},
		{"next later", `<https://a/items>; rel="first", <https://a/items?start=200>; rel="next"`, "https://a/items?start=200"},
		{"no next", `<https://a/items>; rel="first"`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextLink(tt.header))
		})
	}
}
