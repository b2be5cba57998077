// Package leds drives a WS2812 strip through an SPI data line.
//
// Each colour bit is shaped by the SPI clock: two bits per SPI byte, so the bus must
// run between 2 MHz and 3.8 MHz (T0H <= 500ns, one bit >= 1063ns).
package leds

import (
	"fmt"
	"image/color"
)

// StripLength is the number of LEDs on the controller.
const StripLength = 54

// SPIFrequency is the clock the encoding is timed for.
const SPIFrequency = 3_000_000

// resetBytes of zeros latch the strip.
const resetBytes = 20

// bytesPerLED is three colour bytes of four SPI bytes each.
const bytesPerLED = 12

// patterns[bits] shapes two data bits: high time first, then low time.
var patterns = [4]byte{0b0100_0100, 0b0100_0111, 0b0111_0100, 0b0111_0111}

// Conn is the SPI transmit side; periph.io spi.Conn and TinyGo machine.SPI both
// satisfy it.
type Conn interface {
	Tx(w, r []byte) error
}

type StripOpts struct {
	// IdleHigh prepends a reset so the first bit is not lost on boards whose MOSI
	// idles high.
	IdleHigh bool
}

type StripOpt func(*StripOpts)

func WithIdleHigh() StripOpt {
	return func(o *StripOpts) {
		o.IdleHigh = true
	}
}

type Strip struct {
	conn   Conn
	config StripOpts
	buf    []byte
}

func NewStrip(conn Conn, opts ...StripOpt) *Strip {
	var config StripOpts
	for _, opt := range opts {
		opt(&config)
	}
	return &Strip{conn: conn, config: config}
}

// Write sends colours to the strip in order, followed by the latch.
func (s *Strip) Write(colors []color.RGBA) error {
	s.buf = s.buf[:0]
	if s.config.IdleHigh {
		s.buf = append(s.buf, make([]byte, resetBytes)...)
	}
	s.buf = Encode(s.buf, colors)
	if err := s.conn.Tx(s.buf, nil); err != nil {
		return fmt.Errorf("leds: spi write failed: %w", err)
	}
	return nil
}

// Encode appends the SPI frame for colors to dst: G, R, B per LED, then the latch.
func Encode(dst []byte, colors []color.RGBA) []byte {
	for _, c := range colors {
		dst = encodeByte(dst, c.G)
		dst = encodeByte(dst, c.R)
		dst = encodeByte(dst, c.B)
	}
	return append(dst, make([]byte, resetBytes)...)
}

func encodeByte(dst []byte, b byte) []byte {
	for range 4 {
		dst = append(dst, patterns[(b&0b1100_0000)>>6])
		b <<= 2
	}
	return dst
}

// Decode recovers the colours from a frame produced by Encode. Leading and
// trailing zero bytes are skipped.
func Decode(frame []byte) ([]color.RGBA, error) {
	start := 0
	for start < len(frame) && frame[start] == 0 {
		start++
	}
	end := len(frame)
	for end > start && frame[end-1] == 0 {
		end--
	}
	data := frame[start:end]
	if len(data)%bytesPerLED != 0 {
		return nil, fmt.Errorf("leds: frame length %d is not a whole number of LEDs", len(data))
	}
	colors := make([]color.RGBA, 0, len(data)/bytesPerLED)
	for i := 0; i < len(data); i += bytesPerLED {
		g, err := decodeByte(data[i : i+4])
		if err != nil {
			return nil, err
		}
		r, err := decodeByte(data[i+4 : i+8])
		if err != nil {
			return nil, err
		}
		b, err := decodeByte(data[i+8 : i+12])
		if err != nil {
			return nil, err
		}
		colors = append(colors, color.RGBA{R: r, G: g, B: b, A: 0xFF})
	}
	return colors, nil
}

func decodeByte(src []byte) (byte, error) {
	var b byte
	for _, s := range src {
		bits := -1
		for i, p := range patterns {
			if p == s {
				bits = i
				break
			}
		}
		if bits < 0 {
			return 0, fmt.Errorf("leds: invalid symbol %#x", s)
		}
		b = b<<2 | byte(bits)
	}
	return b, nil
}
