package slave

import "github.com/topisani/ottofw"

// StageKind tags the active variant of the protocol state.
type StageKind uint8

const (
	// StageWaiting is idle: no transfer in progress.
	StageWaiting StageKind = iota
	// StageTransmitting serves a host read from a packet and a cursor.
	StageTransmitting
	// StageReceiving assembles a host write into the RX buffer.
	StageReceiving
	// StageReceivedDataReady holds a complete inbound packet for the task.
	StageReceivedDataReady
)

func (k StageKind) String() string {
	switch k {
	case StageWaiting:
		return "waiting"
	case StageTransmitting:
		return "transmitting"
	case StageReceiving:
		return "receiving"
	case StageReceivedDataReady:
		return "received data ready"
	default:
		return "unknown"
	}
}

// stage is a tagged union. Only the payload of the active kind is meaningful:
// packet+cursor for transmitting, rx for receiving, packet for data ready.
// It lives inside the driver so the interrupt path never allocates.
type stage struct {
	kind   StageKind
	packet ottofw.Packet
	cursor int
	rx     rxBuffer
}

func (s *stage) wait() {
	s.kind = StageWaiting
	s.packet = ottofw.Packet{}
	s.cursor = 0
}

func (s *stage) transmit(p ottofw.Packet) {
	s.kind = StageTransmitting
	s.packet = p
	s.cursor = 0
}

func (s *stage) receive() {
	s.kind = StageReceiving
	s.rx.reset()
}

func (s *stage) ready(p ottofw.Packet) {
	s.kind = StageReceivedDataReady
	s.packet = p
}

// nextByte returns the byte under the cursor, or 0 past the end, and advances.
func (s *stage) nextByte() byte {
	var b byte
	if s.cursor < len(s.packet) {
		b = s.packet[s.cursor]
	}
	s.cursor++
	return b
}
