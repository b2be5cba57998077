// Package app composes the controller firmware: it forwards key events to the host
// over the I2C slave link and applies LED commands the host sends back.
package app

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/leds"
	"github.com/topisani/ottofw/proto"
	"github.com/topisani/ottofw/slave"
)

// Link is the task side of the slave engine; *slave.Driver implements it.
type Link interface {
	Enqueue(p ottofw.Packet) error
	Receive(ctx context.Context) (ottofw.Packet, error)
}

// Scanner produces key changes; *keys.Matrix implements it.
type Scanner interface {
	Poll(ctx context.Context) ([]keys.Event, error)
}

// Display shows a frame; *leds.Strip implements it.
type Display interface {
	Write(colors []color.RGBA) error
}

type Opts struct {
	Logger            *slog.Logger
	PollInterval      time.Duration
	AnimationInterval time.Duration
	HeartbeatInterval time.Duration
	Heartbeat         keys.OutputPin
	StripLength       int
	BootPattern       leds.Pattern
}

type Opt func(*Opts)

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// WithPollInterval sets how often the key matrix is scanned.
func WithPollInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = d
	}
}

func WithAnimationInterval(d time.Duration) Opt {
	return func(o *Opts) {
		o.AnimationInterval = d
	}
}

// WithHeartbeat blinks pin every interval while the firmware runs.
func WithHeartbeat(pin keys.OutputPin, interval time.Duration) Opt {
	return func(o *Opts) {
		o.Heartbeat = pin
		o.HeartbeatInterval = interval
	}
}

func WithStripLength(n int) Opt {
	return func(o *Opts) {
		o.StripLength = n
	}
}

// WithBootPattern sets the animation shown until the host sends a command.
func WithBootPattern(p leds.Pattern) Opt {
	return func(o *Opts) {
		o.BootPattern = p
	}
}

// Stats are counters of the firmware tasks.
type Stats struct {
	Events        uint32
	DroppedEvents uint32
	Commands      uint32
	BadCommands   uint32
}

type Firmware struct {
	link   Link
	input  Scanner
	strip  Display
	config Opts
	log    *slog.Logger

	mu      sync.Mutex
	frame   leds.Frame
	pattern leds.Pattern
	step    int
	seq     uint16
	stats   Stats
}

func New(link Link, input Scanner, strip Display, opts ...Opt) *Firmware {
	config := Opts{
		Logger:            slog.Default(),
		PollInterval:      10 * time.Millisecond,
		AnimationInterval: 40 * time.Millisecond,
		HeartbeatInterval: 300 * time.Millisecond,
		StripLength:       leds.StripLength,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Firmware{
		link:    link,
		input:   input,
		strip:   strip,
		config:  config,
		log:     config.Logger.With("component", "firmware"),
		frame:   leds.NewFrame(config.StripLength),
		pattern: config.BootPattern,
	}
}

// Run starts the firmware tasks and blocks until ctx ends or the link is closed.
func (f *Firmware) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := f.show(); err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	spawn := func(name string, task func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := task(ctx)
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			f.log.Error("task stopped", "task", name, "error", err)
			emu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			emu.Unlock()
			cancel()
		}()
	}
	spawn("input", f.pollInput)
	spawn("commands", f.serveCommands)
	spawn("animation", f.animate)
	if f.config.Heartbeat != nil {
		spawn("heartbeat", f.heartbeat)
	}
	f.log.Info("firmware running", "leds", len(f.frame))
	wg.Wait()
	return errors.Join(errs...)
}

func (f *Firmware) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Frame returns a copy of the current LED frame.
func (f *Firmware) Frame() leds.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(leds.Frame(nil), f.frame...)
}

func (f *Firmware) pollInput(ctx context.Context) error {
	ticker := time.NewTicker(f.config.PollInterval)
	defer ticker.Stop()
	for {
		events, err := f.input.Poll(ctx)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := f.forward(ev); err != nil {
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

func (f *Firmware) forward(ev keys.Event) error {
	f.mu.Lock()
	msg := proto.KeyEvent{Key: ev.Key, Pressed: ev.Pressed, Seq: f.seq}
	f.seq++
	f.stats.Events++
	f.mu.Unlock()

	err := f.link.Enqueue(msg.Packet())
	switch {
	case err == nil:
		f.log.Debug("key event queued", "event", msg)
		return nil
	case errors.Is(err, slave.ErrQueueFull):
		f.mu.Lock()
		f.stats.DroppedEvents++
		f.mu.Unlock()
		f.log.Warn("transmit queue full, dropping key event", "event", msg)
		return nil
	default:
		return err
	}
}

func (f *Firmware) serveCommands(ctx context.Context) error {
	for {
		p, err := f.link.Receive(ctx)
		if err != nil {
			return err
		}
		if err := f.apply(p); err != nil {
			f.log.Warn("ignoring command", "error", err)
		}
	}
}

func (f *Firmware) apply(p ottofw.Packet) error {
	msg, err := proto.Decode(p)
	if err != nil {
		f.mu.Lock()
		f.stats.BadCommands++
		f.mu.Unlock()
		return err
	}
	f.mu.Lock()
	switch m := msg.(type) {
	case proto.None:
		f.mu.Unlock()
		return nil
	case proto.SetLEDs:
		f.pattern = leds.PatternNone
		f.frame.Set(int(m.Start), m.Colors)
	case proto.Fill:
		f.pattern = leds.PatternNone
		f.frame.Fill(m.Color)
	case proto.Animate:
		f.pattern = m.Pattern
		f.step = 0
		if m.Pattern == leds.PatternNone {
			f.frame.Fill(leds.Off)
		}
	default:
		f.stats.BadCommands++
		f.mu.Unlock()
		return fmt.Errorf("app: %s is not a command", msg.Kind())
	}
	f.stats.Commands++
	f.mu.Unlock()
	f.log.Debug("command applied", "kind", msg.Kind())
	return f.show()
}

func (f *Firmware) animate(ctx context.Context) error {
	ticker := time.NewTicker(f.config.AnimationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !f.advance() {
			continue
		}
		if err := f.show(); err != nil {
			return err
		}
	}
}

// advance renders the next animation step and reports whether the frame changed.
func (f *Firmware) advance() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.frame)
	if n == 0 {
		return false
	}
	switch f.pattern {
	case leds.PatternWipe:
		f.frame.Wipe(f.step, leds.WipeColor)
		f.step = (f.step + 1) % (2 * n)
	case leds.PatternRainbow:
		f.frame.Rainbow(float64(f.step) / float64(n))
		f.step = (f.step + 1) % n
	default:
		return false
	}
	return true
}

func (f *Firmware) show() error {
	f.mu.Lock()
	frame := append(leds.Frame(nil), f.frame...)
	f.mu.Unlock()
	if err := f.strip.Write(frame); err != nil {
		return fmt.Errorf("app: could not update leds: %w", err)
	}
	return nil
}

func (f *Firmware) heartbeat(ctx context.Context) error {
	ticker := time.NewTicker(f.config.HeartbeatInterval)
	defer ticker.Stop()
	level := gpio.Low
	for {
		select {
		case <-ctx.Done():
			_ = f.config.Heartbeat.Out(gpio.Low)
			return ctx.Err()
		case <-ticker.C:
		}
		level = !level
		if err := f.config.Heartbeat.Out(level); err != nil {
			return fmt.Errorf("app: heartbeat: %w", err)
		}
	}
}
