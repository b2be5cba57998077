// Package client talks to the controller from the host side of the I2C link.
//
// The controller withholds ACK on its address while it processes a command, so
// writes are retried a few times before giving up. Reads never block on the
// controller: an empty queue yields a KindNone packet.
//
// Typical usage:
//
//	d := client.New(bus)
//	ev, ok, err := d.NextEvent(ctx)
//	err = d.Fill(ctx, color.RGBA{R: 0xFF, A: 0xFF})
package client

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/leds"
	"github.com/topisani/ottofw/proto"
)

type Opts struct {
	Address    byte
	Retries    int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

type Opt func(*Opts)

func WithAddress(address byte) Opt {
	return func(o *Opts) {
		o.Address = address
	}
}

// WithRetries sets how many times a failed write is repeated.
func WithRetries(n int) Opt {
	return func(o *Opts) {
		o.Retries = n
	}
}

func WithRetryDelay(d time.Duration) Opt {
	return func(o *Opts) {
		o.RetryDelay = d
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

type Device struct {
	mx        sync.Mutex
	transport ottofw.I2CBus
	config    Opts
	log       *slog.Logger

	lastSeq uint16
	seenSeq bool
	lost    uint32
}

func New(transport ottofw.I2CBus, opts ...Opt) *Device {
	config := Opts{
		Address:    ottofw.DefaultAddress,
		Retries:    5,
		RetryDelay: 2 * time.Millisecond,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Device{
		transport: transport,
		config:    config,
		log:       config.Logger.With("device", "otto", "address", fmt.Sprintf("%#x", config.Address)),
	}
}

// Lost returns the number of key events the controller reported dropping.
func (d *Device) Lost() uint32 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.lost
}

// Read fetches the next outbound packet from the controller.
func (d *Device) Read(ctx context.Context) (ottofw.Packet, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.read(ctx)
}

func (d *Device) read(ctx context.Context) (ottofw.Packet, error) {
	var p ottofw.Packet
	if err := d.transport.ReadFromAddr(ctx, d.config.Address, p[:]); err != nil {
		return p, fmt.Errorf("otto: could not read packet: %w", err)
	}
	return p, nil
}

// Send writes one command packet, retrying while the controller is busy.
func (d *Device) Send(ctx context.Context, msg proto.Message) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.send(ctx, msg.Packet())
}

func (d *Device) send(ctx context.Context, p ottofw.Packet) error {
	var err error
	for attempt := 0; attempt <= d.config.Retries; attempt++ {
		if attempt > 0 {
			d.log.Debug("retrying write", "attempt", attempt, "error", err)
			if werr := sleep(ctx, d.config.RetryDelay); werr != nil {
				return werr
			}
		}
		err = d.transport.WriteToAddr(ctx, d.config.Address, p[:])
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}
	return fmt.Errorf("otto: write failed after %d attempts: %w", d.config.Retries+1, err)
}

// NextEvent reads one packet and returns the key event it carries. ok is false when
// the controller had nothing queued.
func (d *Device) NextEvent(ctx context.Context) (proto.KeyEvent, bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	p, err := d.read(ctx)
	if err != nil {
		return proto.KeyEvent{}, false, err
	}
	msg, err := proto.Decode(p)
	if err != nil {
		return proto.KeyEvent{}, false, fmt.Errorf("otto: %w", err)
	}
	ev, ok := msg.(proto.KeyEvent)
	if !ok {
		return proto.KeyEvent{}, false, nil
	}
	d.track(ev.Seq)
	return ev, true, nil
}

func (d *Device) track(seq uint16) {
	if d.seenSeq && seq != d.lastSeq+1 {
		gap := seq - d.lastSeq - 1
		d.lost += uint32(gap)
		d.log.Warn("key events lost", "expected", d.lastSeq+1, "got", seq, "lost", gap)
	}
	d.lastSeq = seq
	d.seenSeq = true
}

// Watch polls the controller every interval and calls fn for each key event, draining
// the queue before sleeping again. It returns when ctx ends or fn returns an error.
func (d *Device) Watch(ctx context.Context, interval time.Duration, fn func(proto.KeyEvent) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			ev, ok, err := d.NextEvent(ctx)
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetLEDs sets consecutive LEDs from start, split across as many packets as needed.
func (d *Device) SetLEDs(ctx context.Context, start int, colors []color.RGBA) error {
	if start < 0 || start+len(colors) > 0xFF+1 {
		return fmt.Errorf("otto: led range %d+%d out of bounds", start, len(colors))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	for i := 0; i < len(colors); i += proto.MaxLEDsPerPacket {
		end := min(i+proto.MaxLEDsPerPacket, len(colors))
		msg := proto.SetLEDs{Start: uint8(start + i), Colors: colors[i:end]}
		if err := d.send(ctx, msg.Packet()); err != nil {
			return fmt.Errorf("otto: set leds %d..%d: %w", start+i, start+end-1, err)
		}
	}
	return nil
}

func (d *Device) Fill(ctx context.Context, c color.RGBA) error {
	return d.Send(ctx, proto.Fill{Color: c})
}

// Animate starts a built-in pattern on the controller.
func (d *Device) Animate(ctx context.Context, p leds.Pattern) error {
	return d.Send(ctx, proto.Animate{Pattern: p})
}

func (d *Device) Off(ctx context.Context) error {
	return d.Animate(ctx, leds.PatternNone)
}

// Release frees the underlying bus, if it needs it.
func (d *Device) Release(ctx context.Context) error {
	return d.transport.Release(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
