package utils

import (
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/disintegration/imaging"
)

// Audio file extensions that can receive embedded artwork
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".opus": true,
	".ogg":  true,
	".wav":  true,
	".aiff": true,
}

// Image formats a cover can be saved as
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsAudioFile reports whether path has an extension that supports artwork.
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsImageFile reports whether path has an extension SaveImage can write.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// CreateTempDir creates a temporary folder for generated covers
func CreateTempDir() (string, error) {
	dir, err := os.MkdirTemp("", "doomcover-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary directory: %w", err)
	}
	return dir, nil
}

// Cleanup removes the temporary folder.
// Safety check: only deletes directories in /tmp
func Cleanup(dir string) error {
	if dir == "" {
		return nil
	}

	if !strings.HasPrefix(filepath.Clean(dir), filepath.Clean(os.TempDir())) {
		return fmt.Errorf("refusing to delete directory outside temp folder: %s", dir)
	}

	return os.RemoveAll(dir)
}

// SaveImage writes img to path, choosing the format from the extension and
// creating parent directories as needed.
func SaveImage(path string, img image.Image) error {
	if path == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	if !IsImageFile(path) {
		return fmt.Errorf("unsupported image format %q", filepath.Ext(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(95)); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// ViewerCommand returns the command that opens path in the desktop's
// default image viewer.
func ViewerCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", path}
	default:
		return "xdg-open", []string{path}
	}
}

// OpenInViewer starts the default viewer on path without waiting for it.
func OpenInViewer(path string) error {
	name, args := ViewerCommand(runtime.GOOS, path)
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("no image viewer available: '%s' not found in PATH", name)
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open viewer: %w", err)
	}
	go cmd.Wait()
	return nil
}
