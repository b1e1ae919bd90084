// Package banner renders the channel banner image for a post.
package banner

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	width  = 1280
	height = 640
)

var (
	gradientTop    = color.NRGBA{R: 0x0f, G: 0x4c, B: 0x75, A: 0xff}
	gradientBottom = color.NRGBA{R: 0x1b, G: 0x26, B: 0x2e, A: 0xff}
	titleColor     = color.NRGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
)

// Renderer produces banner image bytes from a project title.
type Renderer interface {
	Render(title string) ([]byte, error)
}

// Generator renders a vertical-gradient PNG with the centered title.
type Generator struct{}

// NewGenerator creates a Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Render draws the banner for the given title and returns PNG bytes.
func (g *Generator) Render(title string) ([]byte, error) {
	if title == "" {
		return nil, fmt.Errorf("title is empty")
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		c := lerp(gradientTop, gradientBottom, float64(y)/float64(height-1))
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}

	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, title).Ceil()
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(titleColor),
		Face: face,
		Dot: fixed.P(
			textOriginX(textWidth),
			height/2+face.Metrics().Ascent.Ceil()/2,
		),
	}
	drawer.DrawString(title)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode banner: %w", err)
	}
	return buf.Bytes(), nil
}

// textOriginX centers the title, clamping to the left edge when the text
// is wider than the canvas so it starts on it instead of off it.
func textOriginX(textWidth int) int {
	x := (width - textWidth) / 2
	if x < 0 {
		return 0
	}
	return x
}

func lerp(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}
