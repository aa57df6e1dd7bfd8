package banner

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// The placeholder is drawn on a small canvas and scaled up with
// nearest-neighbor, which turns the fixed-size bitmap font into large
// readable glyphs.
const (
	placeholderScale = 5
	smallWidth       = bannerWidth / placeholderScale
	smallHeight      = bannerHeight / placeholderScale
	textPadding      = 12
)

// placeholderPalette holds the background candidates; the title hash
// picks one, so identical titles always render identically.
var placeholderPalette = []color.RGBA{
	{R: 0x1e, G: 0x29, B: 0x3b, A: 0xff}, // slate
	{R: 0x2d, G: 0x1e, B: 0x3b, A: 0xff}, // violet
	{R: 0x1e, G: 0x3b, B: 0x32, A: 0xff}, // pine
	{R: 0x3b, G: 0x25, B: 0x1e, A: 0xff}, // umber
	{R: 0x1e, G: 0x33, B: 0x3b, A: 0xff}, // petrol
	{R: 0x38, G: 0x1e, B: 0x27, A: 0xff}, // wine
}

var placeholderText = color.RGBA{R: 0xf2, G: 0xf2, B: 0xef, A: 0xff}

// renderPlaceholder draws the deterministic text-on-color banner used
// when every generative provider is exhausted. It performs no I/O and
// no allocation beyond the image buffers.
func renderPlaceholder(title string) image.Image {
	bg := placeholderPalette[int(hashTitle(title))%len(placeholderPalette)]

	small := image.NewRGBA(image.Rect(0, 0, smallWidth, smallHeight))
	draw.Draw(small, small.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	maxChars := (smallWidth - 2*textPadding) / 7
	lines := wrapTitle(title, maxChars)

	lineHeight := face.Height + 2
	startY := (smallHeight-lineHeight*len(lines))/2 + face.Ascent
	for i, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		x := (smallWidth - width) / 2
		if x < textPadding {
			x = textPadding
		}

		d := &font.Drawer{
			Dst:  small,
			Src:  image.NewUniform(placeholderText),
			Face: face,
			Dot:  fixed.P(x, startY+i*lineHeight),
		}
		d.DrawString(line)
	}

	dst := image.NewRGBA(image.Rect(0, 0, bannerWidth, bannerHeight))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), xdraw.Src, nil)

	return dst
}

func hashTitle(title string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(title))
	return h.Sum32()
}

// wrapTitle greedily wraps words to maxChars per line, truncating past
// four lines so the text always fits the canvas.
func wrapTitle(title string, maxChars int) []string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return []string{"Untitled"}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) <= maxChars {
			current += " " + word
		} else {
			lines = append(lines, current)
			current = word
		}
	}
	lines = append(lines, current)

	const maxLines = 4
	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] += "..."
	}

	return lines
}
