package flickr

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"doomcover/internal/photo"
	"doomcover/internal/provider"
)

// PageSize is the number of photos requested per search; only the first
// page is ever read.
const PageSize = 500

// Client is a Flickr REST API client that implements photo.Searcher.
type Client struct {
	apiKey     string
	apiSecret  string
	httpClient *http.Client

	// Overridable for testing
	apiURL      string
	photoURLFmt string
}

// New creates a new Flickr client. A zero timeout disables it.
func New(apiKey, apiSecret string, timeout time.Duration) *Client {
	return &Client{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		httpClient:  &http.Client{Timeout: timeout},
		apiURL:      "https://api.flickr.com/services/rest/",
		photoURLFmt: "https://farm%d.staticflickr.com/%s/%s_%s.jpg",
	}
}

func (c *Client) Name() string { return "flickr" }

// Search runs flickr.photos.search for tag, sorted by relevance, photos only.
func (c *Client) Search(ctx context.Context, tag string) ([]photo.Record, error) {
	params := url.Values{}
	params.Set("method", "flickr.photos.search")
	params.Set("api_key", c.apiKey)
	params.Set("text", tag)
	params.Set("per_page", fmt.Sprint(PageSize))
	params.Set("content_type", "1")
	params.Set("sort", "relevance")
	params.Set("format", "json")
	params.Set("nojsoncallback", "1")
	params.Set("api_sig", sign(c.apiSecret, params))

	reqURL := fmt.Sprintf("%s?%s", c.apiURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create flickr request: %w", err)
	}
	req.Header.Set("User-Agent", "doomcover/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.ServiceError{Service: "flickr", Op: "search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, provider.Errorf("flickr", "search", resp.StatusCode, "%s", strings.TrimSpace(string(body)))
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, provider.Errorf("flickr", "search", resp.StatusCode, "failed to decode response: %w", err)
	}

	if searchResp.Stat != "ok" {
		return nil, provider.Errorf("flickr", "search", resp.StatusCode, "API error %d: %s", searchResp.Code, searchResp.Message)
	}

	return c.parseResults(searchResp.Photos.Photo), nil
}

func (c *Client) parseResults(items []photoItem) []photo.Record {
	results := make([]photo.Record, 0, len(items))
	for _, item := range items {
		if item.ID == "" || item.Secret == "" || item.Server == "" {
			continue
		}
		results = append(results, photo.Record{
			ID:    item.ID,
			Title: item.Title,
			URL:   fmt.Sprintf(c.photoURLFmt, item.Farm, item.Server, item.ID, item.Secret),
		})
	}
	return results
}

// sign computes api_sig: md5 over the secret followed by every parameter
// name and value, sorted by name.
func sign(secret string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Flickr API response types

type searchResponse struct {
	Photos  photoPage `json:"photos"`
	Stat    string    `json:"stat"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
}

type photoPage struct {
	Page    int         `json:"page"`
	Pages   int         `json:"pages"`
	PerPage int         `json:"perpage"`
	Total   json.Number `json:"total"`
	Photo   []photoItem `json:"photo"`
}

type photoItem struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Secret string `json:"secret"`
	Server string `json:"server"`
	Farm   int    `json:"farm"`
	Title  string `json:"title"`
}
