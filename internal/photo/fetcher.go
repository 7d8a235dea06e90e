// Package photo finds, validates and downloads the source photos of a cover.
package photo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"

	"doomcover/internal/logger"
	"doomcover/internal/tagpool"
)

const (
	DefaultMaxAttempts = 10
	DefaultSize        = 500
)

var (
	// ErrNoCandidates means a search returned no photos for the tag.
	ErrNoCandidates = errors.New("no candidate photos")
	// ErrRejected means the classifier did not confirm the tag.
	ErrRejected = errors.New("photo rejected by validator")
)

// ExhaustedRetriesError is returned when no photo validated within the
// attempt budget. It unwraps to the cause of the last failed attempt.
type ExhaustedRetriesError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("no validated photo after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() error { return e.Last }

// Outcome of a single fetch attempt.
type Outcome string

const (
	Accepted     Outcome = "accepted"
	Rejected     Outcome = "rejected"
	NoCandidates Outcome = "no_candidates"
)

// Attempt describes one pass through select-tag, search and validate.
type Attempt struct {
	Number  int
	Tag     string
	Photo   Record
	Outcome Outcome
	Labels  []Label
}

// Options tune the fetch loop.
type Options struct {
	MaxAttempts int
	Size        int
	// ExcludeRejected drops a tag from the pool after a failed attempt.
	// Off by default: a rejected tag may be picked again.
	ExcludeRejected bool
	OnAttempt       func(Attempt)
}

// Result is a validated, decoded photo.
type Result struct {
	Image    *image.NRGBA
	Tag      string
	Photo    Record
	Attempts int
}

// Fetcher runs the search → validate → retry loop against a shared tag pool.
type Fetcher struct {
	pool      *tagpool.Pool
	search    Searcher
	validator *Validator
	download  Downloader
	rng       *rand.Rand
	logger    *logger.Logger
	opts      Options
}

// NewFetcher creates a Fetcher. Zero option values fall back to defaults.
func NewFetcher(pool *tagpool.Pool, s Searcher, v *Validator, d Downloader, rng *rand.Rand, log *logger.Logger, opts Options) *Fetcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	return &Fetcher{
		pool:      pool,
		search:    s,
		validator: v,
		download:  d,
		rng:       rng,
		logger:    log,
		opts:      opts,
	}
}

// Fetch returns one validated photo. On success the tag used is removed from
// the pool. Service errors abort immediately; rejections and empty searches
// start a new attempt with a freshly picked tag until MaxAttempts is spent.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	var last error

	for n := 1; n <= f.opts.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		tag, err := f.pool.Pick(f.rng)
		if err != nil {
			return Result{}, fmt.Errorf("select tag: %w", err)
		}

		records, err := f.search.Search(ctx, tag)
		if err != nil {
			return Result{}, fmt.Errorf("search %q: %w", tag, err)
		}
		if len(records) == 0 {
			f.logger.Debug("Attempt %d: %s has no photos for %q", n, f.search.Name(), tag)
			last = fmt.Errorf("%w for tag %q", ErrNoCandidates, tag)
			f.reject(Attempt{Number: n, Tag: tag, Outcome: NoCandidates})
			continue
		}

		rec := records[f.rng.IntN(len(records))]
		ok, labels, err := f.validator.Validate(ctx, rec.URL, tag)
		if err != nil {
			return Result{}, fmt.Errorf("validate photo %s: %w", rec.ID, err)
		}
		if !ok {
			f.logger.Debug("Attempt %d: photo %s rejected for %q (%d labels)", n, rec.ID, tag, len(labels))
			last = fmt.Errorf("%w: photo %s does not show %q", ErrRejected, rec.ID, tag)
			f.reject(Attempt{Number: n, Tag: tag, Photo: rec, Outcome: Rejected, Labels: labels})
			continue
		}

		f.pool.Remove(tag)
		img, err := f.download.Download(ctx, rec.URL, f.opts.Size)
		if err != nil {
			return Result{}, fmt.Errorf("download photo %s: %w", rec.ID, err)
		}

		f.logger.Debug("Attempt %d: photo %s accepted for %q", n, rec.ID, tag)
		f.report(Attempt{Number: n, Tag: tag, Photo: rec, Outcome: Accepted, Labels: labels})
		return Result{Image: img, Tag: tag, Photo: rec, Attempts: n}, nil
	}

	return Result{}, &ExhaustedRetriesError{Attempts: f.opts.MaxAttempts, Last: last}
}

func (f *Fetcher) reject(a Attempt) {
	if f.opts.ExcludeRejected {
		f.pool.Remove(a.Tag)
	}
	f.report(a)
}

func (f *Fetcher) report(a Attempt) {
	if f.opts.OnAttempt != nil {
		f.opts.OnAttempt(a)
	}
}
