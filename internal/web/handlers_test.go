package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/image/font/gofont/goregular"

	"doomcover/internal/config"
	"doomcover/internal/fonts"
	"doomcover/internal/logger"
	"doomcover/internal/photo"
	"doomcover/internal/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type tagSearcher struct {
	block chan struct{} // when set, searches wait for it or the context
}

func (s *tagSearcher) Name() string { return "mock" }

func (s *tagSearcher) Search(ctx context.Context, tag string) ([]photo.Record, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []photo.Record{{ID: "id-" + tag, URL: "https://photos.test/" + tag}}, nil
}

type urlClassifier struct{}

func (urlClassifier) Name() string { return "mock" }

func (urlClassifier) Classify(_ context.Context, url string) ([]photo.Label, error) {
	return []photo.Label{{Name: path.Base(url), Confidence: 0.95}}, nil
}

type flatDownloader struct{}

func (flatDownloader) Download(_ context.Context, url string, size int) (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := range img.Pix {
		img.Pix[i] = uint8(len(url) * 7)
	}
	return img, nil
}

func newTestServer(t *testing.T, s *tagSearcher, mutate func(*config.Config)) (*Server, http.Handler) {
	t.Helper()
	picker, err := fonts.FromBytes("goregular.ttf", goregular.TTF)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Tags = []string{"fire", "smoke", "sky"}
	cfg.ImageSize = 200
	if mutate != nil {
		mutate(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv := NewServer(ctx, NewJobManager(0), cfg, logger.Discard(), pipeline.Deps{
		Searcher:   s,
		Classifier: urlClassifier{},
		Downloader: flatDownloader{},
		Fonts:      picker,
	})
	return srv, srv.Router()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJob(t *testing.T, w *httptest.ResponseRecorder) JobResponse {
	t.Helper()
	var resp JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func waitForStatus(t *testing.T, srv *Server, id string, want JobStatus) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := srv.jobMgr.GetJob(id)
		if err != nil {
			t.Fatal(err)
		}
		if job.Status == want {
			return job
		}
		if job.Status.Done() {
			t.Fatalf("job finished as %s (%s), want %s", job.Status, job.Error, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for job %s to become %s", id, want)
	return Job{}
}

func TestCreateCover(t *testing.T) {
	srv, h := newTestServer(t, &tagSearcher{}, nil)

	w := do(t, h, http.MethodPost, "/api/covers", `{"band":"Inferno","album":"Ashes","seed":99}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	created := decodeJob(t, w)
	if created.Band != "Inferno" || created.Album != "Ashes" || created.Total != pipeline.StageCount {
		t.Errorf("created = %+v", created)
	}

	waitForStatus(t, srv, created.ID, StatusCompleted)

	w = do(t, h, http.MethodGet, "/api/covers/"+created.ID, "")
	got := decodeJob(t, w)
	if got.Progress != got.Total || got.Seed != 99 || len(got.PhotoTags) != 2 || got.Attempts != 2 {
		t.Errorf("completed job = %+v", got)
	}
	if got.ImageURL != "/api/covers/"+created.ID+"/image" {
		t.Errorf("image_url = %q", got.ImageURL)
	}

	w = do(t, h, http.MethodGet, got.ImageURL, "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("image status = %d, type %q", w.Code, w.Header().Get("Content-Type"))
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("decode cover: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("cover bounds = %v, want 200x200", b)
	}
}

func TestCreateCoverWithTags(t *testing.T) {
	srv, h := newTestServer(t, &tagSearcher{}, nil)

	w := do(t, h, http.MethodPost, "/api/covers", `{"band":"Inferno","album":"Ashes","tags":["lava"]}`)
	created := decodeJob(t, w)
	job := waitForStatus(t, srv, created.ID, StatusCompleted)

	if len(job.PhotoTags) != 1 || job.PhotoTags[0] != "lava" {
		t.Errorf("photo tags = %v, want [lava]", job.PhotoTags)
	}
	if len(job.Warnings) != 1 {
		t.Errorf("expected the pool-exhausted warning, got %v", job.Warnings)
	}
}

func TestCreateCoverValidation(t *testing.T) {
	_, h := newTestServer(t, &tagSearcher{}, nil)

	for _, body := range []string{
		``,
		`{"album":"Ashes"}`,
		`{"band":"  ","album":"Ashes"}`,
		`{"band":"Inferno","album":"Ashes","tags":["fire",""]}`,
		`not json`,
	} {
		if w := do(t, h, http.MethodPost, "/api/covers", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestCancelCover(t *testing.T) {
	searcher := &tagSearcher{block: make(chan struct{})}
	srv, h := newTestServer(t, searcher, nil)

	created := decodeJob(t, do(t, h, http.MethodPost, "/api/covers", `{"band":"Inferno","album":"Ashes"}`))
	waitForStatus(t, srv, created.ID, StatusRunning)

	if w := do(t, h, http.MethodGet, "/api/covers/"+created.ID+"/image", ""); w.Code != http.StatusConflict {
		t.Errorf("image of running job: status = %d, want 409", w.Code)
	}

	if w := do(t, h, http.MethodPost, "/api/covers/"+created.ID+"/cancel", ""); w.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, body %s", w.Code, w.Body.String())
	}
	job := waitForStatus(t, srv, created.ID, StatusCancelled)
	if job.CompletedAt == nil {
		t.Error("cancelled job should have CompletedAt")
	}

	// give the worker time to observe the cancellation; it must not overwrite it
	time.Sleep(50 * time.Millisecond)
	if job, _ := srv.jobMgr.GetJob(created.ID); job.Status != StatusCancelled {
		t.Errorf("status after worker exit = %s", job.Status)
	}

	if w := do(t, h, http.MethodPost, "/api/covers/"+created.ID+"/cancel", ""); w.Code != http.StatusConflict {
		t.Errorf("second cancel: status = %d, want 409", w.Code)
	}
}

func TestCoverNotFound(t *testing.T) {
	_, h := newTestServer(t, &tagSearcher{}, nil)

	for _, target := range []string{"/api/covers/nope", "/api/covers/nope/image"} {
		if w := do(t, h, http.MethodGet, target, ""); w.Code != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", target, w.Code)
		}
	}
	if w := do(t, h, http.MethodPost, "/api/covers/nope/cancel", ""); w.Code != http.StatusNotFound {
		t.Errorf("cancel: status = %d, want 404", w.Code)
	}
}

func TestListCovers(t *testing.T) {
	srv, h := newTestServer(t, &tagSearcher{}, nil)

	a := decodeJob(t, do(t, h, http.MethodPost, "/api/covers", `{"band":"A","album":"1"}`))
	b := decodeJob(t, do(t, h, http.MethodPost, "/api/covers", `{"band":"B","album":"2"}`))
	waitForStatus(t, srv, a.ID, StatusCompleted)
	waitForStatus(t, srv, b.ID, StatusCompleted)

	w := do(t, h, http.MethodGet, "/api/covers", "")
	var list []JobResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("listed %d jobs, want 2", len(list))
	}
}

func TestRateLimit(t *testing.T) {
	_, h := newTestServer(t, &tagSearcher{}, func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.RateBurst = 1
	})

	if w := do(t, h, http.MethodPost, "/api/covers", `{"band":"A","album":"1"}`); w.Code != http.StatusAccepted {
		t.Fatalf("first request: status = %d", w.Code)
	}
	w := do(t, h, http.MethodPost, "/api/covers", `{"band":"B","album":"2"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// reads are not limited
	if w := do(t, h, http.MethodGet, "/api/covers", ""); w.Code != http.StatusOK {
		t.Errorf("list: status = %d", w.Code)
	}
}

func TestRateLimitIgnoresInvalidRequests(t *testing.T) {
	_, h := newTestServer(t, &tagSearcher{}, func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.RateBurst = 1
	})

	for i := 0; i < 3; i++ {
		if w := do(t, h, http.MethodPost, "/api/covers", `{"album":"Ashes"}`); w.Code != http.StatusBadRequest {
			t.Fatalf("invalid request %d: status = %d, want 400", i, w.Code)
		}
	}
	if w := do(t, h, http.MethodPost, "/api/covers", `{"band":"A","album":"1"}`); w.Code != http.StatusAccepted {
		t.Errorf("valid request after invalid ones: status = %d, want 202", w.Code)
	}
}

func TestCORS(t *testing.T) {
	_, h := newTestServer(t, &tagSearcher{}, func(cfg *config.Config) {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/covers", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin: status = %d, want 403", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	searcher := &tagSearcher{block: make(chan struct{})}
	srv, h := newTestServer(t, searcher, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	created := decodeJob(t, do(t, h, http.MethodPost, "/api/covers", `{"band":"Inferno","album":"Ashes"}`))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?job_id=" + created.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForStatus(t, srv, created.ID, StatusRunning)
	close(searcher.block)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last JobResponse
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("bad message %q: %v", data, err)
		}
		if last.Status.Done() {
			break
		}
	}
	if last.Status != StatusCompleted {
		t.Errorf("last streamed status = %q, want completed", last.Status)
	}
}

func TestWebSocketBadRequests(t *testing.T) {
	_, h := newTestServer(t, &tagSearcher{}, nil)

	if w := do(t, h, http.MethodGet, "/ws", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing job_id: status = %d, want 400", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/ws?job_id=nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown job: status = %d, want 404", w.Code)
	}
}
