package slave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topisani/ottofw"
)

func packetOf(b byte) ottofw.Packet {
	var p ottofw.Packet
	for i := range p {
		p[i] = b + byte(i)
	}
	return p
}

func TestTxQueue_FIFO(t *testing.T) {
	var q txQueue
	for i := range QueueCapacity {
		require.True(t, q.push(packetOf(byte(i))))
	}
	assert.False(t, q.push(packetOf(0xFF)), "queue beyond capacity")
	assert.Equal(t, QueueCapacity, q.len())

	for i := range QueueCapacity {
		p, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, packetOf(byte(i)), p)
	}
	_, ok := q.pop()
	assert.False(t, ok)
}

func TestTxQueue_WrapsAround(t *testing.T) {
	var q txQueue
	for round := range 3 * QueueCapacity {
		require.True(t, q.push(packetOf(byte(round))))
		require.True(t, q.push(packetOf(byte(round+100))))
		p, ok := q.pop()
		require.True(t, ok)
		assert.Equal(t, packetOf(byte(round)), p)
		p, ok = q.pop()
		require.True(t, ok)
		assert.Equal(t, packetOf(byte(round+100)), p)
	}
	assert.Zero(t, q.len())
}

func TestRxBuffer_Packet(t *testing.T) {
	tests := []struct {
		name   string
		n      int
		ok     bool
		stored int
	}{
		{"empty", 0, false, 0},
		{"short", 5, false, 5},
		{"exact", ottofw.PacketSize, true, ottofw.PacketSize},
		{"long", ottofw.PacketSize + 1, false, ottofw.PacketSize + 1},
		{"overflow", RxCapacity + 6, false, RxCapacity},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var r rxBuffer
			dropped := 0
			for i := range test.n {
				if !r.append(byte(i + 1)) {
					dropped++
				}
			}
			assert.Equal(t, test.stored, r.len())
			assert.Equal(t, test.n-test.stored, dropped)
			p, ok := r.packet()
			assert.Equal(t, test.ok, ok)
			if !ok {
				assert.Equal(t, ottofw.Packet{}, p)
				return
			}
			assert.Equal(t, packetOf(1), p)
		})
	}
}

func TestStage_NextBytePastEnd(t *testing.T) {
	var s stage
	s.transmit(packetOf(1))
	for i := range ottofw.PacketSize {
		assert.Equal(t, byte(i+1), s.nextByte())
	}
	assert.Zero(t, s.nextByte())
	assert.Zero(t, s.nextByte())
}

func TestWakeSlot_LastRegisteredWins(t *testing.T) {
	var w wakeSlot
	first := w.register()
	second := w.register()
	w.wake()
	select {
	case <-second:
	default:
		t.Fatal("latest waiter not woken")
	}
	select {
	case <-first:
		t.Fatal("replaced waiter woken")
	default:
	}
	w.wake() // empty slot is a no-op
}
