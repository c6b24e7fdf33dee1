// Package label renders printable badge labels for cards, so a drawer full
// of test cards can be told apart without plugging each one in.
package label

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/fogleman/gg"
	"github.com/nfnt/resize"
)

// image size of 50x81.6mm (85.60 mm × 53.98 with 2mm margin on each side) at 600 DPI
// = 1181 x 1928 pix

const height = 1928
const width = 1181
const iconSize = 900

var fontFile = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"

// Info describes the card a label is rendered for. Icon is optional.
type Info struct {
	Name string
	ATR  []byte
	Icon image.Image
}

// Create renders a PNG label for the card and writes it to out.
func Create(info Info, out io.Writer) error {
	l := gg.NewContext(width, height)
	l.SetRGB(1, 1, 1)
	l.Fill()

	if info.Icon != nil {
		scaled := resize.Resize(iconSize, 0, info.Icon, resize.Lanczos3)
		origin := width / 2
		l.DrawImageAnchored(scaled, origin, origin, 0.5, 0.5)
	}
	l.SetRGB(0, 0, 0)

	if err := renderString(l, strings.ToUpper(info.Name), 112, 1300); err != nil {
		return err
	}
	l.SetRGB(0.4, 0.4, 0.4)
	if err := renderString(l, formatATR(info.ATR), 72, 1550); err != nil {
		return err
	}

	if err := l.EncodePNG(out); err != nil {
		return fmt.Errorf("could not render PNG: %v", err.Error())
	}
	return nil
}

func renderString(c *gg.Context, s string, size, y float64) error {
	if s == "" {
		return nil
	}
	if err := c.LoadFontFace(fontFile, size); err != nil {
		return fmt.Errorf("could not load the font: %v", err.Error())
	}
	lines := c.WordWrap(s, width-(width/10))
	for i, line := range lines {
		c.DrawStringAnchored(line, float64(width/2), y+float64(i)*size*1.2, 0.5, 0.5)
	}
	return nil
}

// formatATR spaces the ATR hex in byte pairs so it word-wraps cleanly.
func formatATR(atr []byte) string {
	if len(atr) == 0 {
		return ""
	}
	parts := make([]string, len(atr))
	for i, b := range atr {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
