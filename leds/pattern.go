package leds

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

var Off = color.RGBA{A: 0xFF}

// WipeColor is the colour of the power-on wipe.
var WipeColor = color.RGBA{R: 0xFF, G: 0x00, B: 0x20, A: 0xFF}

// Pattern identifies a built-in animation.
type Pattern uint8

const (
	PatternNone Pattern = iota
	PatternWipe
	PatternRainbow
)

func (p Pattern) String() string {
	switch p {
	case PatternNone:
		return "none"
	case PatternWipe:
		return "wipe"
	case PatternRainbow:
		return "rainbow"
	default:
		return "unknown"
	}
}

// Frame is the colour state of a whole strip.
type Frame []color.RGBA

func NewFrame(n int) Frame {
	f := make(Frame, n)
	f.Fill(Off)
	return f
}

func (f Frame) Fill(c color.RGBA) {
	for i := range f {
		f[i] = c
	}
}

// Set copies colors into the frame from start, clipping at the end. It returns the
// number of LEDs written.
func (f Frame) Set(start int, colors []color.RGBA) int {
	if start < 0 || start >= len(f) {
		return 0
	}
	return copy(f[start:], colors)
}

// Rainbow fills the frame with a hue sweep shifted by phase (0..1).
func (f Frame) Rainbow(phase float64) {
	n := float64(len(f))
	for i := range f {
		hue := math.Mod((float64(i)/n+phase)*360, 360)
		if hue < 0 {
			hue += 360
		}
		r, g, b := colorful.Hsv(hue, 1, 1).RGB255()
		f[i] = color.RGBA{R: r, G: g, B: b, A: 0xFF}
	}
}

// Wipe lights the first step LEDs of a cycle that fills the strip then clears it;
// step runs over 0..2*len(f).
func (f Frame) Wipe(step int, c color.RGBA) {
	n := len(f)
	if n == 0 {
		return
	}
	step %= 2 * n
	for i := range f {
		switch {
		case step < n && i <= step:
			f[i] = c
		case step >= n && i > step-n:
			f[i] = c
		default:
			f[i] = Off
		}
	}
}
