package ottofw

import (
	"context"
	"fmt"
)

// PacketSize is the fixed payload length exchanged in either direction.
const PacketSize = 17

// DefaultAddress is the 7-bit slave address the controller answers on.
const DefaultAddress = 0x77

// Packet is an opaque fixed-size payload. It is copied, never shared, across the
// interrupt/task boundary.
type Packet [PacketSize]byte

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")
var ErrNack = fmt.Errorf("address not acknowledged")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

// I2CBus is the host side of the link: anything able to address the controller as
// a bus master.
type I2CBus interface {
	AddressableReader
	AddressableWriter
}
