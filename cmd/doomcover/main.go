package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"doomcover/internal/artwork"
	"doomcover/internal/config"
	"doomcover/internal/fonts"
	"doomcover/internal/logger"
	"doomcover/internal/photo"
	"doomcover/internal/pipeline"
	"doomcover/internal/progress"
	"doomcover/internal/shutdown"
	"doomcover/pkg/utils"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	args, err := parseArgs(os.Args[1:])
	switch {
	case args.action == actionHelp:
		printUsage()
		if err != nil {
			os.Exit(exitConfig)
		}
		return
	case args.action == actionInitConfig:
		if err := initConfigFile(); err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			os.Exit(exitFailure)
		}
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(exitCode(err))
	}
	cfg := args.cfg

	log := logger.New(cfg.Verbose)
	defer log.Close()

	if !cfg.Verbose {
		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
		} else {
			logFile := filepath.Join(logDir, fmt.Sprintf("doomcover_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			if err := log.SetFileLog(logFile); err != nil {
				fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
			} else {
				log.Debug("Logging to file: %s", logFile)
			}
		}
	}

	if args.configPath != "" {
		log.Debug("Loaded configuration from: %s", args.configPath)
	}

	if err := cfg.Validate(); err != nil {
		log.Error("Configuration error: %v", err)
		log.Close()
		os.Exit(exitConfig)
	}

	sh := shutdown.New()
	sh.OnSignal = func(sig os.Signal) {
		log.Warn("Received %s, stopping (press Ctrl+C again to force)", sig)
	}
	sh.Listen()

	if err := run(sh, cfg, log); err != nil {
		log.Error("%v", err)
		log.Close()
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, config.ErrInvalid), errors.Is(err, fonts.ErrNoFonts):
		return exitConfig
	default:
		return exitFailure
	}
}

func run(sh *shutdown.Handler, cfg config.Config, log *logger.Logger) error {
	maker, err := pipeline.New(cfg, log, pipeline.Deps{})
	if err != nil {
		return err
	}
	log.Debug("Random seed: %d (pass --seed %d to reproduce this cover)", maker.Seed(), maker.Seed())

	var bar *progress.Bar
	if !cfg.Verbose {
		bar = progress.New(pipeline.StageCount)
		log.SetQuiet(true)
	}
	var stage string
	var warnings []string
	hooks := pipeline.Hooks{
		OnStage: func(s string) {
			stage = s
			if bar != nil {
				bar.Stage(s)
			}
		},
		OnAttempt: func(a photo.Attempt) {
			if bar != nil && a.Outcome != photo.Accepted {
				bar.Note(fmt.Sprintf("%s: attempt %d %s", stage, a.Number, a.Outcome))
			}
		},
		OnWarning: func(msg string) {
			warnings = append(warnings, msg)
		},
	}

	res, err := maker.Make(sh.Context(), pipeline.Cover{Band: cfg.Band, Album: cfg.Album}, hooks)

	if bar != nil {
		if err == nil {
			bar.Finish()
		} else {
			fmt.Println()
		}
		log.SetQuiet(false)
	}
	// warnings were hidden behind the bar
	if bar != nil {
		for _, w := range warnings {
			log.Warn("%s", w)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("interrupted")
		}
		return err
	}

	if cfg.Output != "" {
		if err := utils.SaveImage(cfg.Output, res.Image); err != nil {
			return err
		}
		log.Info("Saved cover to %s", cfg.Output)
	}

	if cfg.Embed != "" {
		if err := artwork.Embed(cfg.Embed, res.Image, cfg.Band, cfg.Album); err != nil {
			return fmt.Errorf("failed to embed cover: %w", err)
		}
		log.Info("Embedded cover into %s", cfg.Embed)
	}

	if !cfg.NoShow {
		if err := show(sh, cfg, res, log); err != nil {
			return err
		}
	}

	log.Info("=== %s - %s: done ===", cfg.Band, cfg.Album)
	return nil
}

// show opens the cover in the default viewer. Without --output the cover
// is written to a temporary file first, which is left for the viewer.
func show(sh *shutdown.Handler, cfg config.Config, res *pipeline.Result, log *logger.Logger) error {
	path := cfg.Output
	if path == "" {
		tmpDir, err := utils.CreateTempDir()
		if err != nil {
			return fmt.Errorf("error creating temporary folder: %w", err)
		}
		sh.AddCleanup(func() {
			if err := utils.Cleanup(tmpDir); err != nil {
				log.Warn("Error during cleanup: %v", err)
			}
		})

		path = filepath.Join(tmpDir, "cover.png")
		if err := utils.SaveImage(path, res.Image); err != nil {
			return err
		}
		log.Debug("Cover written to %s", path)
	}

	if err := utils.OpenInViewer(path); err != nil {
		return fmt.Errorf("%w (the cover is at %s)", err, path)
	}
	return nil
}
