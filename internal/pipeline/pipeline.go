package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"time"

	"doomcover/internal/config"
	"doomcover/internal/cover"
	"doomcover/internal/fonts"
	"doomcover/internal/logger"
	"doomcover/internal/photo"
	"doomcover/internal/provider/clarifai"
	"doomcover/internal/provider/flickr"
	"doomcover/internal/tagpool"
)

// Stages reported through Hooks.OnStage, in order.
const (
	StageFirstPhoto  = "first photo"
	StageSecondPhoto = "second photo"
	StageCompose     = "compose"
)

// StageCount is the number of stages a cover goes through.
const StageCount = 3

// Cover names the band and album printed on the cover.
type Cover struct {
	Band  string
	Album string
}

type Hooks struct {
	OnStage   func(stage string)
	OnAttempt func(photo.Attempt)
	OnWarning func(msg string)
}

// Deps replaces the services a Maker would otherwise build from config.
// Nil fields are built from config.
type Deps struct {
	Searcher   photo.Searcher
	Classifier photo.Classifier
	Downloader photo.Downloader
	Fonts      cover.FontSource
	Rand       *rand.Rand
}

// Result is a finished cover together with the photos it was made from.
type Result struct {
	Image       *image.NRGBA
	Photos      []photo.Result
	Composition *cover.Result
}

// Maker produces one cover per tag pool. A Maker is single-use in the sense
// that tags consumed by Make stay consumed; build a new one per run.
type Maker struct {
	cfg      config.Config
	logger   *logger.Logger
	pool     *tagpool.Pool
	fetcher  *photo.Fetcher
	composer *cover.Composer
	seed     uint64
	hooks    Hooks
}

// New wires the font picker, the remote clients, the tag pool, the fetcher
// and the composer.
func New(cfg config.Config, log *logger.Logger, deps Deps) (*Maker, error) {
	textColor, err := config.ParseColor(cfg.TextColor)
	if err != nil {
		return nil, fmt.Errorf("%w: text_color: %v", config.ErrInvalid, err)
	}

	if deps.Fonts == nil {
		picker, err := fonts.Load(config.ExpandHome(cfg.FontsDir))
		if err != nil {
			return nil, fmt.Errorf("failed to load fonts: %w", err)
		}
		log.Debug("Loaded %d fonts from %s", len(picker.Names()), cfg.FontsDir)
		deps.Fonts = picker
	}
	if deps.Searcher == nil {
		deps.Searcher = flickr.New(cfg.FlickrAPIKey, cfg.FlickrAPISecret, cfg.RequestTimeout)
	}
	if deps.Classifier == nil {
		deps.Classifier = clarifai.New(cfg.ClarifaiClientID, cfg.ClarifaiClientSecret, cfg.RequestTimeout)
	}
	if deps.Downloader == nil {
		deps.Downloader = photo.NewHTTPDownloader(cfg.RequestTimeout)
	}

	m := &Maker{
		cfg:    cfg,
		logger: log,
		pool:   tagpool.New(cfg.Tags),
	}
	if deps.Rand == nil {
		deps.Rand, m.seed = NewRand(cfg.Seed)
	}

	validator := photo.NewValidator(deps.Classifier, cfg.ConfidenceThreshold)
	m.fetcher = photo.NewFetcher(m.pool, deps.Searcher, validator, deps.Downloader, deps.Rand, log, photo.Options{
		MaxAttempts:     cfg.MaxAttempts,
		Size:            cfg.ImageSize,
		ExcludeRejected: cfg.ExcludeRejectedTags,
		OnAttempt:       m.onAttempt,
	})
	m.composer = cover.NewComposer(deps.Fonts, deps.Rand, textColor, log)

	return m, nil
}

// NewRand returns a PCG-backed rng and the seed it was built from. A zero
// seed is replaced by one derived from the clock.
func NewRand(seed uint64) (*rand.Rand, uint64) {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), seed
}

// Seed is the rng seed in use, 0 when the caller supplied its own rng.
func (m *Maker) Seed() uint64 { return m.seed }

// Pool exposes the tag pool, mostly for inspection after a run.
func (m *Maker) Pool() *tagpool.Pool { return m.pool }

// Make fetches two validated photos and composes the cover: fetch → fetch →
// blend → text.
func (m *Maker) Make(ctx context.Context, c Cover, hooks Hooks) (*Result, error) {
	m.hooks = hooks
	defer func() { m.hooks = Hooks{} }()

	m.stage(StageFirstPhoto)
	m.logger.Info("=== Fetching first photo ===")
	first, err := m.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first photo: %w", err)
	}
	m.logger.Info("Using photo %s (%q) for %q after %d attempt(s)", first.Photo.ID, first.Photo.Title, first.Tag, first.Attempts)

	m.stage(StageSecondPhoto)
	var second photo.Result
	if m.pool.Len() == 0 {
		m.warn(fmt.Sprintf("tag pool exhausted after %q; blending the first photo with itself", first.Tag))
		second = first
	} else {
		m.logger.Info("=== Fetching second photo ===")
		second, err = m.fetcher.Fetch(ctx)
		switch {
		case errors.Is(err, tagpool.ErrEmpty):
			return nil, fmt.Errorf("failed to fetch second photo: every remaining tag was rejected: %w", err)
		case err != nil:
			return nil, fmt.Errorf("failed to fetch second photo: %w", err)
		}
		m.logger.Info("Using photo %s (%q) for %q after %d attempt(s)", second.Photo.ID, second.Photo.Title, second.Tag, second.Attempts)
	}

	m.stage(StageCompose)
	m.logger.Info("=== Composing cover ===")
	comp, err := m.composer.Compose(first.Image, second.Image, c.Band, c.Album)
	if err != nil {
		return nil, fmt.Errorf("failed to compose cover: %w", err)
	}

	return &Result{
		Image:       comp.Image,
		Photos:      []photo.Result{first, second},
		Composition: comp,
	}, nil
}

func (m *Maker) onAttempt(a photo.Attempt) {
	if m.hooks.OnAttempt != nil {
		m.hooks.OnAttempt(a)
	}
}

func (m *Maker) stage(name string) {
	if m.hooks.OnStage != nil {
		m.hooks.OnStage(name)
	}
}

func (m *Maker) warn(msg string) {
	m.logger.Warn("%s", msg)
	if m.hooks.OnWarning != nil {
		m.hooks.OnWarning(msg)
	}
}
