package photo

import (
	"context"
	"image"
)

// Record identifies one remote photo returned by a search.
type Record struct {
	ID    string
	Title string
	URL   string // public download URL
}

// Label is one (concept, confidence) pair from an image classifier.
// Confidence is in [0, 1].
type Label struct {
	Name       string
	Confidence float64
}

// Searcher finds candidate photos for a tag.
type Searcher interface {
	Name() string
	Search(ctx context.Context, tag string) ([]Record, error)
}

// Classifier labels the image at a public URL.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, url string) ([]Label, error)
}

// Downloader fetches a photo and decodes it into a size×size bitmap.
type Downloader interface {
	Download(ctx context.Context, url string, size int) (*image.NRGBA, error)
}
