// Package cover blends two photos and lays band and album text over them.
package cover

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"math/rand/v2"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"doomcover/internal/logger"
)

// ErrSizeMismatch is returned when the two photos do not have the same size.
var ErrSizeMismatch = errors.New("images differ in size")

// FontSource hands out faces of randomly chosen fonts.
type FontSource interface {
	Pick(rng *rand.Rand, size float64) (font.Face, string, error)
}

// Layout places the text. Positions are the top-left corner of the text box.
type Layout struct {
	Margins   []int   // candidate x and y offsets
	BandSize  float64 // points
	AlbumSize float64
	AlbumTop  int // added to the album's y offset
	MinRatio  float64
	MaxRatio  float64
}

var DefaultLayout = Layout{
	Margins:   []int{20, 50},
	BandSize:  100,
	AlbumSize: 45,
	AlbumTop:  200,
	MinRatio:  0.25,
	MaxRatio:  0.75,
}

// Result is a composed cover and the random choices that produced it.
type Result struct {
	Image     *image.NRGBA
	Ratio     float64
	BandFont  string
	AlbumFont string
	BandAt    image.Point
	AlbumAt   image.Point
}

// Composer draws covers. It is not safe for concurrent use because it owns rng.
type Composer struct {
	fonts  FontSource
	rng    *rand.Rand
	color  color.Color
	layout Layout
	logger *logger.Logger
}

// NewComposer creates a Composer with DefaultLayout. A nil text colour means white.
func NewComposer(fonts FontSource, rng *rand.Rand, textColor color.Color, log *logger.Logger) *Composer {
	if textColor == nil {
		textColor = color.White
	}
	return &Composer{
		fonts:  fonts,
		rng:    rng,
		color:  textColor,
		layout: DefaultLayout,
		logger: log,
	}
}

// SetLayout replaces the default layout.
func (c *Composer) SetLayout(l Layout) {
	c.layout = l
}

// Compose blends a and b with a random ratio and draws band and album on top.
func (c *Composer) Compose(a, b *image.NRGBA, band, album string) (*Result, error) {
	ratio := c.layout.MinRatio + c.rng.Float64()*(c.layout.MaxRatio-c.layout.MinRatio)
	img, err := Blend(a, b, ratio)
	if err != nil {
		return nil, err
	}
	res := &Result{Image: img, Ratio: ratio}

	res.BandAt = image.Pt(c.margin(), c.margin())
	res.BandFont, err = c.drawText(img, band, c.layout.BandSize, res.BandAt)
	if err != nil {
		return nil, fmt.Errorf("draw band name: %w", err)
	}

	res.AlbumAt = image.Pt(c.margin(), c.layout.AlbumTop+c.margin())
	res.AlbumFont, err = c.drawText(img, album, c.layout.AlbumSize, res.AlbumAt)
	if err != nil {
		return nil, fmt.Errorf("draw album name: %w", err)
	}

	c.logger.Debug("Composed cover: ratio %.3f, band %q in %s at %v, album %q in %s at %v",
		ratio, band, res.BandFont, res.BandAt, album, res.AlbumFont, res.AlbumAt)
	return res, nil
}

func (c *Composer) margin() int {
	return c.layout.Margins[c.rng.IntN(len(c.layout.Margins))]
}

func (c *Composer) drawText(dst draw.Image, text string, size float64, at image.Point) (string, error) {
	face, name, err := c.fonts.Pick(c.rng, size)
	if err != nil {
		return "", err
	}
	defer face.Close()

	DrawText(dst, face, c.color, at, text)
	return name, nil
}

// DrawText renders text with its top-left corner at at. Glyphs falling
// outside dst are clipped.
func DrawText(dst draw.Image, face font.Face, col color.Color, at image.Point, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(at.X),
			Y: fixed.I(at.Y) + face.Metrics().Ascent,
		},
	}
	d.DrawString(text)
}

// Blend returns a*(1-r) + b*r per channel. r is quantised to 16 bits and
// the two weights always sum to one, so Blend(a, b, r) equals
// Blend(b, a, 1-r).
func Blend(a, b *image.NRGBA, r float64) (*image.NRGBA, error) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return nil, fmt.Errorf("%w: %v vs %v", ErrSizeMismatch, a.Bounds().Size(), b.Bounds().Size())
	}
	r = math.Max(0, math.Min(1, r))

	const one = 1 << 16
	wb := uint32(math.RoundToEven(r * one))
	wa := one - wb

	size := a.Bounds().Size()
	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+size.X*4]
		rb := b.Pix[y*b.Stride : y*b.Stride+size.X*4]
		ro := out.Pix[y*out.Stride : y*out.Stride+size.X*4]
		for i := range ro {
			ro[i] = uint8((uint32(ra[i])*wa + uint32(rb[i])*wb + one/2) >> 16)
		}
	}
	return out, nil
}
