// Package artwork embeds a finished cover into an audio file.
package artwork

import (
	"bytes"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"go.senan.xyz/taglib"
)

// JPEGQuality is used when encoding the cover for embedding.
const JPEGQuality = 90

// Embed writes img as the front artwork of the audio file at path and sets
// its album, artist and album artist tags. Empty band or album leave the
// corresponding tags alone.
func Embed(path string, img image.Image, band, album string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio file: %w", err)
	}

	data, err := EncodeJPEG(img)
	if err != nil {
		return err
	}
	if err := taglib.WriteImage(path, data); err != nil {
		return fmt.Errorf("failed to write artwork to %s: %w", path, err)
	}

	tags := make(map[string][]string)
	if band != "" {
		tags[taglib.Artist] = []string{band}
		tags[taglib.AlbumArtist] = []string{band}
	}
	if album != "" {
		tags[taglib.Album] = []string{album}
	}
	if len(tags) == 0 {
		return nil
	}
	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

// EncodeJPEG encodes img the way it is stored in audio tags.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode artwork: %w", err)
	}
	return buf.Bytes(), nil
}
