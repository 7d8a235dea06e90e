package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"doomcover/internal/config"
	"doomcover/internal/fonts"
	"doomcover/internal/logger"
	"doomcover/internal/photo"
	"doomcover/internal/pipeline"
	"doomcover/internal/provider/clarifai"
	"doomcover/internal/provider/flickr"
	"doomcover/internal/web"
)

func main() {
	var (
		addr       string
		configPath string
		verbose    bool
	)

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides server.addr)")
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.BoolVar(&verbose, "verbose", false, "Log requests and job details to stdout")
	flag.Parse()

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(2)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(2)
	}

	// Setup logger with file logging
	l := logger.New(verbose)
	logDir := config.GetDefaultLogPath()
	if err := os.MkdirAll(logDir, 0755); err == nil {
		logPath := filepath.Join(logDir, fmt.Sprintf("doomcover-web-%d.log", time.Now().Unix()))
		if err := l.SetFileLog(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to setup file logging: %v\n", err)
		}
	}
	defer l.Close()

	// Fonts are parsed once and shared by all jobs
	picker, err := fonts.Load(cfg.FontsDir)
	if err != nil {
		l.Error("Failed to load fonts: %v", err)
		l.Close()
		os.Exit(2)
	}
	l.Info("Loaded %d fonts from %s", len(picker.Names()), cfg.FontsDir)

	deps := pipeline.Deps{
		Searcher:   flickr.New(cfg.FlickrAPIKey, cfg.FlickrAPISecret, cfg.RequestTimeout),
		Classifier: clarifai.New(cfg.ClarifaiClientID, cfg.ClarifaiClientSecret, cfg.RequestTimeout),
		Downloader: photo.NewHTTPDownloader(cfg.RequestTimeout),
		Fonts:      picker,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gin.SetMode(gin.ReleaseMode)
	jobMgr := web.NewJobManager(cfg.Server.JobRetention)
	server := web.NewServer(ctx, jobMgr, cfg, l, deps)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info("Starting cover server on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return jobMgr.RunCleanup(gctx, 10*time.Minute)
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		l.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Error("%v", err)
		l.Close()
		os.Exit(1)
	}

	l.Info("Server stopped")
}
