package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/slave"
)

var ErrBusStalled = errors.New("sim: bus stalled")
var ErrNoTransfer = errors.New("sim: no transfer in progress")

var _ ottofw.I2CBus = &Master{}

type direction int

const (
	idle direction = iota
	writing
	reading
)

// Master is a simulated bus master attached to a Device. It is not safe for
// concurrent use; one Master models one host.
type Master struct {
	dev   *Device
	state direction
}

func NewMaster(dev *Device) *Master {
	return &Master{dev: dev}
}

// BeginWrite addresses the slave for writing.
func (m *Master) BeginWrite(address byte) error {
	return m.begin(address, writing)
}

// BeginRead addresses the slave for reading.
func (m *Master) BeginRead(address byte) error {
	return m.begin(address, reading)
}

func (m *Master) begin(address byte, dir direction) error {
	m.dev.mu.Lock()
	if !m.dev.acks(address) {
		m.dev.mu.Unlock()
		return fmt.Errorf("sim: address %#x: %w", address, ottofw.ErrNack)
	}
	m.dev.sr1 &^= uint32(slave.FlagTxEmpty)
	m.dev.sr1 |= uint32(slave.FlagAddressMatch)
	m.dev.sr2 = slave.SR2Busy
	if dir == reading {
		m.dev.sr2 |= slave.SR2Transmitter
	}
	m.dev.deliver(lineEvent)
	m.dev.mu.Unlock()
	if m.dev.Flags().Has(slave.FlagAddressMatch) {
		return fmt.Errorf("%w: address match not cleared", ErrBusStalled)
	}
	m.state = dir
	return nil
}

// WriteByte clocks one byte into the slave. A byte arriving while the previous one
// is still unread latches an overrun and fires the error line instead.
func (m *Master) WriteByte(b byte) error {
	if m.state != writing {
		return ErrNoTransfer
	}
	overrun := false
	m.dev.mu.Lock()
	if m.dev.sr1&uint32(slave.FlagRxNotEmpty) != 0 {
		overrun = true
		m.dev.sr1 |= uint32(slave.FlagOverrun)
		m.dev.deliver(lineError)
	} else {
		m.dev.rx = b
		m.dev.sr1 |= uint32(slave.FlagRxNotEmpty)
		m.dev.deliver(lineEvent)
	}
	m.dev.mu.Unlock()
	if overrun {
		return fmt.Errorf("%w: overrun", ErrBusStalled)
	}
	return nil
}

// Stop ends a write transfer.
func (m *Master) Stop() error {
	if m.state != writing {
		return ErrNoTransfer
	}
	m.state = idle
	m.dev.raise(lineEvent, func() {
		m.dev.sr1 |= uint32(slave.FlagStop)
		m.dev.sr2 &^= slave.SR2Busy
	})
	if m.dev.Flags().Has(slave.FlagStop) {
		return fmt.Errorf("%w: stop not cleared", ErrBusStalled)
	}
	return nil
}

// ReadByte clocks one byte out of the slave.
func (m *Master) ReadByte() (byte, error) {
	if m.state != reading {
		return 0, ErrNoTransfer
	}
	var (
		b       byte
		written bool
	)
	m.dev.raise(lineEvent, func() {
		m.dev.txSet = false
		m.dev.sr1 |= uint32(slave.FlagTxEmpty)
	})
	m.dev.mu.Lock()
	b, written = m.dev.tx, m.dev.txSet
	m.dev.mu.Unlock()
	if !written {
		return 0, fmt.Errorf("%w: data register not written", ErrBusStalled)
	}
	return b, nil
}

// Nack ends a read transfer the way a host does: no acknowledge for the last byte.
func (m *Master) Nack() error {
	if m.state != reading {
		return ErrNoTransfer
	}
	m.state = idle
	m.dev.raise(lineError, func() {
		m.dev.sr1 &^= uint32(slave.FlagTxEmpty)
		m.dev.sr1 |= uint32(slave.FlagAckFailure)
		m.dev.sr2 &^= slave.SR2Busy | slave.SR2Transmitter
	})
	if m.dev.Flags().Has(slave.FlagAckFailure) {
		return fmt.Errorf("%w: acknowledge failure not cleared", ErrBusStalled)
	}
	return nil
}

func (m *Master) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.BeginWrite(address); err != nil {
		return err
	}
	for i, b := range buffer {
		if err := m.WriteByte(b); err != nil {
			m.state = idle
			return fmt.Errorf("sim: write byte %d: %w", i, err)
		}
	}
	return m.Stop()
}

func (m *Master) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.BeginRead(address); err != nil {
		return err
	}
	for i := range buffer {
		b, err := m.ReadByte()
		if err != nil {
			m.state = idle
			return fmt.Errorf("sim: read byte %d: %w", i, err)
		}
		buffer[i] = b
	}
	return m.Nack()
}

func (m *Master) Release(ctx context.Context) error {
	m.state = idle
	return nil
}
