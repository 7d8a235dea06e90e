package flickr

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"doomcover/internal/provider"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "doomcover/1.0" {
			t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
		}
		q := r.URL.Query()
		want := map[string]string{
			"method":         "flickr.photos.search",
			"api_key":        "test-key",
			"text":           "black and white",
			"per_page":       "500",
			"content_type":   "1",
			"sort":           "relevance",
			"format":         "json",
			"nojsoncallback": "1",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
		if q.Get("api_sig") == "" {
			t.Error("api_sig missing")
		}

		w.Write([]byte(`{
			"photos": {
				"page": 1, "pages": 10, "perpage": 500, "total": "4821",
				"photo": [
					{"id": "5023", "owner": "12@N0", "secret": "abc", "server": "4012", "farm": 5, "title": "Old street"},
					{"id": "", "secret": "x", "server": "1", "farm": 1, "title": "broken"},
					{"id": "7788", "owner": "99@N0", "secret": "def", "server": "65535", "farm": 66, "title": "Pier"}
				]
			},
			"stat": "ok"
		}`))
	}))
	defer srv.Close()

	c := New("test-key", "test-secret", 0)
	c.apiURL = srv.URL

	results, err := c.Search(context.Background(), "black and white")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (one malformed skipped), got %d", len(results))
	}

	if results[0].ID != "5023" || results[0].Title != "Old street" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if want := "https://farm5.staticflickr.com/4012/5023_abc.jpg"; results[0].URL != want {
		t.Errorf("URL = %q, want %q", results[0].URL, want)
	}
	if want := "https://farm66.staticflickr.com/65535/7788_def.jpg"; results[1].URL != want {
		t.Errorf("URL = %q, want %q", results[1].URL, want)
	}
}

func TestSearchNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(searchResponse{Stat: "ok", Photos: photoPage{Page: 1, Total: "0"}})
	}))
	defer srv.Close()

	c := New("k", "s", 0)
	c.apiURL = srv.URL

	results, err := c.Search(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestSearchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stat":"fail","code":100,"message":"Invalid API Key (Key has invalid format)"}`))
	}))
	defer srv.Close()

	c := New("bad", "s", 0)
	c.apiURL = srv.URL

	_, err := c.Search(context.Background(), "fire")
	var se *provider.ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if se.Service != "flickr" || se.Op != "search" {
		t.Errorf("ServiceError = %+v", se)
	}
}

func TestSearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New("k", "s", 0)
	c.apiURL = srv.URL

	_, err := c.Search(context.Background(), "fire")
	var se *provider.ServiceError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 ServiceError, got %v", err)
	}
	if !se.Transient() {
		t.Error("503 should be transient")
	}
}

func TestSearchMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`jsonFlickrApi({"stat":"ok"})`))
	}))
	defer srv.Close()

	c := New("k", "s", 0)
	c.apiURL = srv.URL

	if _, err := c.Search(context.Background(), "fire"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestSign(t *testing.T) {
	params := url.Values{}
	params.Set("method", "flickr.test.echo")
	params.Set("api_key", "9a0554259914a86fb9e7eb014e4e5d52")
	params.Set("format", "json")

	sum := md5.Sum([]byte("000005fab4534d05" + "api_key9a0554259914a86fb9e7eb014e4e5d52formatjsonmethodflickr.test.echo"))
	want := hex.EncodeToString(sum[:])

	got := sign("000005fab4534d05", params)
	if got != want {
		t.Errorf("sign() = %q, want %q", got, want)
	}
	if other := sign("different-secret", params); other == got {
		t.Error("signature must depend on the secret")
	}

	params.Set("text", "fire")
	if withText := sign("000005fab4534d05", params); withText == got {
		t.Error("signature must depend on the parameters")
	}
}
