package photo

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // webp decoder registration

	"doomcover/internal/provider"
)

// maxPhotoBytes caps a single download.
const maxPhotoBytes = 32 << 20

// HTTPDownloader downloads photos over plain HTTP GET.
type HTTPDownloader struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPDownloader creates a downloader. A zero timeout disables it.
func NewHTTPDownloader(timeout time.Duration) *HTTPDownloader {
	return &HTTPDownloader{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  "doomcover/1.0",
	}
}

// Download fetches url, decodes it (jpeg, png, gif, bmp, tiff, webp) and
// stretches it to size×size.
func (d *HTTPDownloader) Download(ctx context.Context, url string, size int) (*image.NRGBA, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &provider.ServiceError{Service: "download", Op: "get", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.Errorf("download", "get", resp.StatusCode, "unexpected status for %s", url)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxPhotoBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, provider.Errorf("download", "decode", resp.StatusCode, "decode %s: %w", url, err)
	}

	return Resize(img, size), nil
}

// Resize stretches img to size×size, like the cover layout expects.
func Resize(img image.Image, size int) *image.NRGBA {
	return imaging.Resize(img, size, size, imaging.Lanczos)
}
