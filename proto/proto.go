// Package proto defines the messages carried in the fixed 17-byte packets exchanged
// between the host and the controller.
//
// Byte 0 holds the message kind. An all-zero packet is KindNone and means "nothing
// to report"; the controller sends it when a host reads with an empty queue.
package proto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image/color"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/leds"
)

type Kind uint8

const (
	KindNone Kind = iota
	KindKeyEvent
	KindSetLEDs
	KindFill
	KindAnimate
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindKeyEvent:
		return "key-event"
	case KindSetLEDs:
		return "set-leds"
	case KindFill:
		return "fill"
	case KindAnimate:
		return "animate"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxLEDsPerPacket is how many colours fit in one SetLEDs packet.
const MaxLEDsPerPacket = 4

var (
	ErrUnknownKind = errors.New("proto: unknown message kind")
	ErrMalformed   = errors.New("proto: malformed message")
)

type Message interface {
	Kind() Kind
	Packet() ottofw.Packet
}

// None is the empty message.
type None struct{}

func (None) Kind() Kind { return KindNone }

func (None) Packet() ottofw.Packet { return ottofw.Packet{} }

// KeyEvent reports a key change. Seq increments on every event the controller
// generates, so the host can detect events dropped on a full queue.
type KeyEvent struct {
	Key     keys.Key
	Pressed bool
	Seq     uint16
}

func (KeyEvent) Kind() Kind { return KindKeyEvent }

func (e KeyEvent) Packet() ottofw.Packet {
	var p ottofw.Packet
	p[0] = byte(KindKeyEvent)
	p[1] = byte(e.Key)
	if e.Pressed {
		p[2] = 1
	}
	binary.BigEndian.PutUint16(p[3:5], e.Seq)
	return p
}

func (e KeyEvent) String() string {
	action := "release"
	if e.Pressed {
		action = "press"
	}
	return fmt.Sprintf("#%d %s %s", e.Seq, action, e.Key)
}

// SetLEDs sets up to MaxLEDsPerPacket consecutive LEDs from Start.
type SetLEDs struct {
	Start  uint8
	Colors []color.RGBA
}

func (SetLEDs) Kind() Kind { return KindSetLEDs }

func (m SetLEDs) Packet() ottofw.Packet {
	var p ottofw.Packet
	p[0] = byte(KindSetLEDs)
	p[1] = m.Start
	n := min(len(m.Colors), MaxLEDsPerPacket)
	p[2] = byte(n)
	for i := range n {
		putRGB(p[3+3*i:], m.Colors[i])
	}
	return p
}

// Fill sets every LED to one colour.
type Fill struct {
	Color color.RGBA
}

func (Fill) Kind() Kind { return KindFill }

func (m Fill) Packet() ottofw.Packet {
	var p ottofw.Packet
	p[0] = byte(KindFill)
	putRGB(p[1:], m.Color)
	return p
}

// Animate starts a built-in pattern; leds.PatternNone stops it.
type Animate struct {
	Pattern leds.Pattern
}

func (Animate) Kind() Kind { return KindAnimate }

func (m Animate) Packet() ottofw.Packet {
	var p ottofw.Packet
	p[0] = byte(KindAnimate)
	p[1] = byte(m.Pattern)
	return p
}

// Decode parses a packet into its message.
func Decode(p ottofw.Packet) (Message, error) {
	switch Kind(p[0]) {
	case KindNone:
		return None{}, nil
	case KindKeyEvent:
		k := keys.Key(p[1])
		if !k.Valid() {
			return nil, fmt.Errorf("%w: key code %d", ErrMalformed, p[1])
		}
		return KeyEvent{
			Key:     k,
			Pressed: p[2] != 0,
			Seq:     binary.BigEndian.Uint16(p[3:5]),
		}, nil
	case KindSetLEDs:
		n := int(p[2])
		if n == 0 || n > MaxLEDsPerPacket {
			return nil, fmt.Errorf("%w: led count %d", ErrMalformed, n)
		}
		m := SetLEDs{Start: p[1], Colors: make([]color.RGBA, n)}
		for i := range n {
			m.Colors[i] = getRGB(p[3+3*i:])
		}
		return m, nil
	case KindFill:
		return Fill{Color: getRGB(p[1:])}, nil
	case KindAnimate:
		pat := leds.Pattern(p[1])
		if pat > leds.PatternRainbow {
			return nil, fmt.Errorf("%w: pattern %d", ErrMalformed, p[1])
		}
		return Animate{Pattern: pat}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, p[0])
	}
}

func putRGB(dst []byte, c color.RGBA) {
	dst[0], dst[1], dst[2] = c.R, c.G, c.B
}

func getRGB(src []byte) color.RGBA {
	return color.RGBA{R: src[0], G: src[1], B: src[2], A: 0xFF}
}
