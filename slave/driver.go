// Package slave implements an interrupt-driven I2C slave for STM32F1-style
// peripherals. The protocol engine is driven entirely from the event and error
// interrupt lines; application code talks to it through a Driver, which enqueues
// outbound packets and waits for inbound ones.
//
// Shared state is guarded by masking both interrupt lines. Handlers never block and
// are never re-entered, so the mask is the only lock in the system.
//
// Typical usage:
//
//	d, err := slave.New(slave.NewPeripheral(regs), irq, slave.WithAddress(0x77))
//	if err != nil { ... }
//	defer d.Close()
//	_ = d.Enqueue(packet)
//	p, err := d.Receive(ctx)
package slave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/topisani/ottofw"
)

var ErrInvalidAddress = errors.New("slave: invalid 7-bit address")
var ErrQueueFull = errors.New("slave: transmit queue full")
var ErrClosed = errors.New("slave: driver closed")

// QueueFullError carries the packet Enqueue rejected.
type QueueFullError struct {
	Packet ottofw.Packet
}

func (e *QueueFullError) Error() string {
	return ErrQueueFull.Error()
}

func (e *QueueFullError) Unwrap() error {
	return ErrQueueFull
}

// Stats are diagnostic counters maintained by the interrupt handlers.
type Stats struct {
	// ReadTransfers counts host reads served from the queue.
	ReadTransfers uint32
	// EmptyReads counts host reads served with the zero packet.
	EmptyReads uint32
	// Received counts completed host writes handed to the task.
	Received uint32
	// DroppedBytes counts bytes lost to a full RX buffer.
	DroppedBytes uint32
	// LengthMismatches counts writes that were not exactly PacketSize bytes.
	LengthMismatches uint32
	// Faults counts error interrupts that forced a recovery.
	Faults uint32
	// ReadTerminations counts host NACKs ending a read.
	ReadTerminations uint32
	// Resyncs counts event interrupts that matched no stage.
	Resyncs uint32
}

type Options struct {
	Address uint16
	Logger  *slog.Logger
}

type Option func(*Options)

// WithAddress sets the 7-bit slave address.
func WithAddress(address uint16) Option {
	return func(o *Options) {
		o.Address = address
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Driver is the task-facing handle of the slave engine.
type Driver struct {
	periph  Peripheral
	irq     InterruptController
	log     *slog.Logger
	address uint16

	// guarded by the interrupt mask
	stage  stage
	txq    txQueue
	wake   wakeSlot
	stats  Stats
	diag   diagnostics
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// New configures the peripheral and attaches both interrupt handlers. It must be
// called from task context and panics otherwise. The returned Driver stays bound to
// the peripheral until Close.
func New(p Peripheral, irq InterruptController, opts ...Option) (*Driver, error) {
	if irq.InInterrupt() {
		panic("slave: driver constructed from interrupt context")
	}
	o := Options{
		Address: ottofw.DefaultAddress,
		Logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Driver{
		periph:  p,
		irq:     irq,
		log:     o.Logger.With("component", "i2c-slave"),
		address: o.Address,
		done:    make(chan struct{}),
	}
	var err error
	d.critical(func() {
		err = p.Configure(o.Address)
	})
	if err != nil {
		return nil, fmt.Errorf("slave: could not configure peripheral at %#x: %w", o.Address, err)
	}
	irq.Attach(d.onEvent, d.onError)
	d.log.Debug("i2c slave ready", "address", fmt.Sprintf("%#x", o.Address))
	return d, nil
}

// Address returns the 7-bit address the driver answers on.
func (d *Driver) Address() uint16 {
	return d.address
}

// critical runs fn with both interrupt lines masked.
func (d *Driver) critical(fn func()) {
	d.irq.Disable()
	defer d.irq.Enable()
	fn()
}

// Enqueue appends p to the transmit queue. It never blocks: a full queue returns a
// *QueueFullError holding p. Transmission starts only when the host reads.
func (d *Driver) Enqueue(p ottofw.Packet) error {
	var ok, closed bool
	d.critical(func() {
		if d.closed {
			closed = true
			return
		}
		ok = d.txq.push(p)
	})
	if closed {
		return ErrClosed
	}
	if !ok {
		return &QueueFullError{Packet: p}
	}
	return nil
}

// Receive waits for the next complete inbound packet. Taking the packet resets the
// stage to waiting and re-arms ACK, letting the host's next transfer through. Only
// the most recent caller is guaranteed to be woken. Diagnostics recorded by the
// handlers are logged on every wake-up.
func (d *Driver) Receive(ctx context.Context) (ottofw.Packet, error) {
	for {
		var (
			p      ottofw.Packet
			ready  bool
			closed bool
			wait   <-chan struct{}
			diag   diagnostics
		)
		d.critical(func() {
			diag = d.takeDiagnostics()
			if d.closed {
				closed = true
				return
			}
			if d.stage.kind == StageReceivedDataReady {
				p = d.stage.packet
				d.stage.wait()
				d.periph.SetAck(true)
				ready = true
				return
			}
			wait = d.wake.register()
		})
		d.report(diag)
		if closed {
			return ottofw.Packet{}, ErrClosed
		}
		if ready {
			return p, nil
		}
		select {
		case <-wait:
		case <-d.done:
			return ottofw.Packet{}, ErrClosed
		case <-ctx.Done():
			return ottofw.Packet{}, ctx.Err()
		}
	}
}

// Stage returns the active protocol stage.
func (d *Driver) Stage() StageKind {
	var k StageKind
	d.critical(func() {
		k = d.stage.kind
	})
	return k
}

// Pending returns the number of queued outbound packets.
func (d *Driver) Pending() int {
	var n int
	d.critical(func() {
		n = d.txq.len()
	})
	return n
}

func (d *Driver) Stats() Stats {
	var s Stats
	d.critical(func() {
		s = d.stats
	})
	return s
}

// Close disables the peripheral, gates its clock and detaches the handlers. Queued
// and partially received data is discarded. Close is idempotent.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		var diag diagnostics
		d.critical(func() {
			diag = d.takeDiagnostics()
			d.closed = true
			d.periph.Shutdown()
			d.txq.reset()
			d.stage.wait()
			d.wake.clear()
		})
		d.irq.Detach()
		close(d.done)
		d.report(diag)
		d.log.Debug("i2c slave closed")
	})
	return nil
}
