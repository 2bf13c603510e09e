package indexer

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/release"
	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// Searcher defines the indexer operations used by the queue service.
type Searcher interface {
	SearchMovie(ctx context.Context, title string, year int) ([]release.Candidate, error)
}

// Client queries a Torznab endpoint (Prowlarr's aggregate feed) for movie
// releases.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Torznab indexer client.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("indexer base url required")
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type torznabFeed struct {
	Channel struct {
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title   string        `xml:"title"`
	GUID    string        `xml:"guid"`
	Link    string        `xml:"link"`
	Size    int64         `xml:"size"`
	Seeders int           `xml:"seeders"`
	Peers   int           `xml:"peers"`
	Attrs   []torznabAttr `xml:"attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (it torznabItem) attr(name string) string {
	for _, a := range it.Attrs {
		if strings.EqualFold(a.Name, name) {
			return a.Value
		}
	}
	return ""
}

func (it torznabItem) attrInt(name string) int {
	n, _ := strconv.Atoi(it.attr(name))
	return n
}

// SearchMovie queries the aggregate feed for the given title. Candidates come
// back with tags parsed from the title where the feed did not report them.
func (c *Client) SearchMovie(ctx context.Context, title string, year int) ([]release.Candidate, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("search title must not be empty")
	}
	query := title
	if year > 0 {
		query = fmt.Sprintf("%s %d", title, year)
	}

	endpoint, err := url.Parse(c.baseURL + "/api/v1/indexers/all/results/torznab/api")
	if err != nil {
		return nil, fmt.Errorf("parse indexer url: %w", err)
	}
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("t", "movie")
	params.Set("q", query)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute indexer search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &resilience.StatusError{
			Dependency: "indexer",
			Code:       resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var feed torznabFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode torznab feed: %w", err)
	}

	candidates := make([]release.Candidate, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		seeders := item.Seeders
		if seeders == 0 {
			seeders = item.attrInt("seeders")
		}
		leechers := item.Peers
		if leechers == 0 {
			leechers = item.attrInt("peers")
		}
		candidate := release.Candidate{
			ID:          item.GUID,
			Title:       item.Title,
			DownloadURL: item.Link,
			SizeBytes:   item.Size,
			Seeders:     seeders,
			Leechers:    leechers,
			Freeleech:   item.attrInt("downloadvolumefactor") == 0 && item.attr("downloadvolumefactor") != "",
			Indexer:     item.attr("indexer"),
		}
		candidate.ParseTags()
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
