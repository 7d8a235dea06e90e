// Package fonts loads a directory of TrueType/OpenType fonts once and hands
// out faces of randomly chosen fonts.
package fonts

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// ErrNoFonts is returned when the font directory holds no usable font file.
var ErrNoFonts = errors.New("no font files found")

var fontExtensions = map[string]bool{
	".ttf": true,
	".otf": true,
}

// Picker holds parsed fonts. It is safe for concurrent use as long as each
// caller brings its own rng.
type Picker struct {
	names []string
	fonts []*opentype.Font
}

// Load parses every font file directly inside dir. Hidden files and
// subdirectories are skipped. A file that fails to parse aborts loading.
func Load(dir string) (*Picker, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read font directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if fontExtensions[strings.ToLower(filepath.Ext(name))] {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFonts, dir)
	}
	sort.Strings(names)

	p := &Picker{names: names, fonts: make([]*opentype.Font, 0, len(names))}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read font %s: %w", name, err)
		}
		parsed, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse font %s: %w", name, err)
		}
		p.fonts = append(p.fonts, parsed)
	}
	return p, nil
}

// FromBytes builds a Picker from in-memory font data, e.g. an embedded font.
func FromBytes(name string, data []byte) (*Picker, error) {
	parsed, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", name, err)
	}
	return &Picker{names: []string{name}, fonts: []*opentype.Font{parsed}}, nil
}

// Names lists the loaded font files in sorted order.
func (p *Picker) Names() []string {
	return append([]string(nil), p.names...)
}

// Pick returns a face of a uniformly chosen font at size points (72 DPI, so
// one point is one pixel) together with the chosen file name.
func (p *Picker) Pick(rng *rand.Rand, size float64) (font.Face, string, error) {
	if len(p.fonts) == 0 {
		return nil, "", ErrNoFonts
	}
	i := rng.IntN(len(p.fonts))
	face, err := opentype.NewFace(p.fonts[i], &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create face for %s at %.0fpt: %w", p.names[i], size, err)
	}
	return face, p.names[i], nil
}
