package leds

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	frames [][]byte
	err    error
}

func (c *fakeConn) Tx(w, r []byte) error {
	c.frames = append(c.frames, append([]byte(nil), w...))
	return c.err
}

func TestEncodeByte(t *testing.T) {
	tests := []struct {
		name     string
		given    byte
		expected []byte
	}{
		{"zeros", 0x00, []byte{0x44, 0x44, 0x44, 0x44}},
		{"ones", 0xFF, []byte{0x77, 0x77, 0x77, 0x77}},
		{"msb first", 0b10_01_11_00, []byte{0x74, 0x47, 0x77, 0x44}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, encodeByte(nil, test.given))
		})
	}
}

func TestEncode_GreenRedBlueThenLatch(t *testing.T) {
	frame := Encode(nil, []color.RGBA{{R: 0x00, G: 0xFF, B: 0x00}})
	require.Len(t, frame, bytesPerLED+resetBytes)
	assert.Equal(t, bytes.Repeat([]byte{0x77}, 4), frame[0:4], "green first")
	assert.Equal(t, bytes.Repeat([]byte{0x44}, 8), frame[4:12])
	assert.Equal(t, make([]byte, resetBytes), frame[12:])
}

func TestDecode(t *testing.T) {
	colors := []color.RGBA{
		{R: 0xFF, G: 0x00, B: 0x20, A: 0xFF},
		{R: 0x01, G: 0x80, B: 0x7F, A: 0xFF},
		{A: 0xFF},
	}
	got, err := Decode(Encode(nil, colors))
	require.NoError(t, err)
	assert.Equal(t, colors, got)

	_, err = Decode([]byte{0x44, 0x44, 0x44})
	assert.ErrorContains(t, err, "whole number")
	bad := Encode(nil, colors[:1])
	bad[5] = 0x55
	_, err = Decode(bad)
	assert.ErrorContains(t, err, "invalid symbol")
}

func TestStrip_Write(t *testing.T) {
	conn := &fakeConn{}
	s := NewStrip(conn)
	require.NoError(t, s.Write([]color.RGBA{{R: 1}, {G: 2}}))
	require.Len(t, conn.frames, 1, "one transaction per frame")
	assert.Len(t, conn.frames[0], 2*bytesPerLED+resetBytes)
	assert.NotZero(t, conn.frames[0][0])
}

func TestStrip_IdleHighFlush(t *testing.T) {
	conn := &fakeConn{}
	s := NewStrip(conn, WithIdleHigh())
	require.NoError(t, s.Write([]color.RGBA{{R: 1}}))
	frame := conn.frames[0]
	assert.Equal(t, make([]byte, resetBytes), frame[:resetBytes])
	got, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, []color.RGBA{{R: 1, A: 0xFF}}, got)
}

func TestStrip_WriteError(t *testing.T) {
	boom := errors.New("boom")
	s := NewStrip(&fakeConn{err: boom})
	assert.ErrorIs(t, s.Write([]color.RGBA{{}}), boom)
}
