package clarifai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"doomcover/internal/photo"
	"doomcover/internal/provider"
)

// Client is a Clarifai v1 tagging API client that implements photo.Classifier.
type Client struct {
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// Overridable for testing
	apiURL string
	sleep  func(context.Context, time.Duration) error
}

// maxRetryAfter caps how long a 429 response can stall a request.
const maxRetryAfter = 30 * time.Second

// New creates a new Clarifai client. A zero timeout disables it.
func New(clientID, clientSecret string, timeout time.Duration) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: timeout},
		apiURL:       "https://api.clarifai.com",
		sleep:        sleepContext,
	}
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) Name() string { return "clarifai" }

// Classify tags the image at imageURL and returns the labels of the top
// result.
func (c *Client) Classify(ctx context.Context, imageURL string) ([]photo.Label, error) {
	reqURL := fmt.Sprintf("%s/v1/tag/?url=%s", c.apiURL, url.QueryEscape(imageURL))

	resp, err := c.doAuthorized(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, provider.Errorf("clarifai", "tag", resp.StatusCode, "%s", strings.TrimSpace(string(body)))
	}

	var tagResp tagResponse
	if err := json.NewDecoder(resp.Body).Decode(&tagResp); err != nil {
		return nil, provider.Errorf("clarifai", "tag", resp.StatusCode, "failed to decode response: %w", err)
	}

	return parseLabels(tagResp, resp.StatusCode)
}

func parseLabels(resp tagResponse, status int) ([]photo.Label, error) {
	if resp.StatusCode != "" && resp.StatusCode != "OK" {
		return nil, provider.Errorf("clarifai", "tag", status, "%s: %s", resp.StatusCode, resp.StatusMsg)
	}
	if len(resp.Results) == 0 {
		return nil, provider.Errorf("clarifai", "tag", status, "response has no results")
	}

	top := resp.Results[0]
	if top.StatusCode != "" && top.StatusCode != "OK" {
		return nil, provider.Errorf("clarifai", "tag", status, "%s: %s", top.StatusCode, top.StatusMsg)
	}

	classes, probs := top.Result.Tag.Classes, top.Result.Tag.Probs
	n := min(len(classes), len(probs))
	labels := make([]photo.Label, n)
	for i := 0; i < n; i++ {
		labels[i] = photo.Label{Name: classes[i], Confidence: probs[i]}
	}
	return labels, nil
}

// doAuthorized issues a GET with a bearer token. A 401 refreshes the token
// and retries once; a 429 waits for Retry-After and retries once.
func (c *Client) doAuthorized(ctx context.Context, reqURL string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.getToken(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create tag request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &provider.ServiceError{Service: "clarifai", Op: "tag", Err: err}
		}
		if attempt > 0 {
			return resp, nil
		}

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			resp.Body.Close()
			c.invalidateToken()
		case http.StatusTooManyRequests:
			resp.Body.Close()
			if err := c.sleep(ctx, retryAfter(resp.Header.Get("Retry-After"))); err != nil {
				return nil, err
			}
		default:
			return resp, nil
		}
	}
}

// retryAfter parses a Retry-After seconds value, defaulting to one second
// and capped at maxRetryAfter.
func retryAfter(header string) time.Duration {
	d := time.Second
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		d = time.Duration(secs) * time.Second
	}
	return min(d, maxRetryAfter)
}

// getToken returns a valid access token, refreshing if necessary.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/token/", strings.NewReader(data.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &provider.ServiceError{Service: "clarifai", Op: "token", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", provider.Errorf("clarifai", "token", resp.StatusCode, "%s", strings.TrimSpace(string(body)))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", provider.Errorf("clarifai", "token", resp.StatusCode, "failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", provider.Errorf("clarifai", "token", resp.StatusCode, "empty access token")
	}

	c.accessToken = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(tokenLifetime(tokenResp.ExpiresIn))

	return c.accessToken, nil
}

// tokenLifetime is how long a token is reused: its lifetime less a refresh
// margin of a minute, or of a tenth of the lifetime for short-lived tokens.
func tokenLifetime(expiresIn int) time.Duration {
	life := time.Duration(expiresIn) * time.Second
	margin := min(time.Minute, life/10)
	return life - margin
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
}

// Clarifai API response types

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

type tagResponse struct {
	StatusCode string      `json:"status_code"`
	StatusMsg  string      `json:"status_msg"`
	Results    []tagResult `json:"results"`
}

type tagResult struct {
	DocID      json.Number `json:"docid"`
	URL        string      `json:"url"`
	StatusCode string      `json:"status_code"`
	StatusMsg  string      `json:"status_msg"`
	Result     struct {
		Tag struct {
			Classes []string  `json:"classes"`
			Probs   []float64 `json:"probs"`
		} `json:"tag"`
	} `json:"result"`
}
