package slave

import "github.com/topisani/ottofw"

// QueueCapacity is the number of outbound packets the driver holds.
const QueueCapacity = 16

// RxCapacity bounds a single inbound transfer.
const RxCapacity = 64

// txQueue is a fixed-capacity FIFO. Producer is the task, consumer the event handler;
// both sides run with the interrupt lines masked or from the handler itself.
type txQueue struct {
	buf   [QueueCapacity]ottofw.Packet
	read  int
	count int
}

func (q *txQueue) push(p ottofw.Packet) bool {
	if q.count == len(q.buf) {
		return false
	}
	q.buf[(q.read+q.count)%len(q.buf)] = p
	q.count++
	return true
}

func (q *txQueue) pop() (ottofw.Packet, bool) {
	if q.count == 0 {
		return ottofw.Packet{}, false
	}
	p := q.buf[q.read]
	q.buf[q.read] = ottofw.Packet{}
	q.read = (q.read + 1) % len(q.buf)
	q.count--
	return p, true
}

func (q *txQueue) len() int {
	return q.count
}

func (q *txQueue) reset() {
	*q = txQueue{}
}

// rxBuffer accumulates one inbound transfer, up to RxCapacity bytes.
type rxBuffer struct {
	buf [RxCapacity]byte
	n   int
}

// append stores b, or reports false when the buffer is full and b was dropped.
func (r *rxBuffer) append(b byte) bool {
	if r.n == len(r.buf) {
		return false
	}
	r.buf[r.n] = b
	r.n++
	return true
}

func (r *rxBuffer) len() int {
	return r.n
}

func (r *rxBuffer) reset() {
	r.n = 0
}

// packet converts the buffer into a Packet. A length other than PacketSize yields
// the zero packet and false.
func (r *rxBuffer) packet() (ottofw.Packet, bool) {
	var p ottofw.Packet
	if r.n != len(p) {
		return p, false
	}
	copy(p[:], r.buf[:r.n])
	return p, true
}
