package app

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/leds"
	"github.com/topisani/ottofw/proto"
	"github.com/topisani/ottofw/sim"
	"github.com/topisani/ottofw/slave"
)

type fakeLink struct {
	sent     chan ottofw.Packet
	inbound  chan ottofw.Packet
	enqueue  error
	received error
}

func newFakeLink() *fakeLink {
	return &fakeLink{sent: make(chan ottofw.Packet, 16), inbound: make(chan ottofw.Packet)}
}

func (l *fakeLink) Enqueue(p ottofw.Packet) error {
	if l.enqueue != nil {
		return l.enqueue
	}
	l.sent <- p
	return nil
}

func (l *fakeLink) Receive(ctx context.Context) (ottofw.Packet, error) {
	if l.received != nil {
		return ottofw.Packet{}, l.received
	}
	select {
	case p := <-l.inbound:
		return p, nil
	case <-ctx.Done():
		return ottofw.Packet{}, ctx.Err()
	}
}

type fakeScanner struct {
	events chan keys.Event
}

func (s *fakeScanner) Poll(ctx context.Context) ([]keys.Event, error) {
	select {
	case ev := <-s.events:
		return []keys.Event{ev}, nil
	default:
		return nil, nil
	}
}

type fakeDisplay struct {
	mu     sync.Mutex
	frames [][]color.RGBA
}

func (d *fakeDisplay) Write(colors []color.RGBA) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = append(d.frames, append([]color.RGBA(nil), colors...))
	return nil
}

func (d *fakeDisplay) last() []color.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return nil
	}
	return d.frames[len(d.frames)-1]
}

type fixture struct {
	link    *fakeLink
	scanner *fakeScanner
	display *fakeDisplay
	fw      *Firmware
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

func start(t *testing.T, link *fakeLink, opts ...Opt) *fixture {
	t.Helper()
	f := &fixture{
		link:    link,
		scanner: &fakeScanner{events: make(chan keys.Event, 4)},
		display: &fakeDisplay{},
		done:    make(chan struct{}),
	}
	opts = append([]Opt{WithPollInterval(time.Millisecond), WithStripLength(4)}, opts...)
	f.fw = New(link, f.scanner, f.display, opts...)
	var ctx context.Context
	ctx, f.cancel = context.WithCancel(context.Background())
	go func() {
		defer close(f.done)
		f.err = f.fw.Run(ctx)
	}()
	t.Cleanup(f.stop)
	return f
}

func (f *fixture) stop() {
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(time.Second):
	}
}

func TestFirmware_ForwardsKeyEvents(t *testing.T) {
	f := start(t, newFakeLink())
	f.scanner.events <- keys.Event{Key: keys.Play, Pressed: true}
	f.scanner.events <- keys.Event{Key: keys.Play}

	for i, expected := range []proto.KeyEvent{
		{Key: keys.Play, Pressed: true, Seq: 0},
		{Key: keys.Play, Seq: 1},
	} {
		select {
		case p := <-f.link.sent:
			msg, err := proto.Decode(p)
			require.NoError(t, err)
			assert.Equal(t, expected, msg, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("event %d not forwarded", i)
		}
	}
	assert.Equal(t, uint32(2), f.fw.Stats().Events)
}

func TestFirmware_DropsEventsOnFullQueue(t *testing.T) {
	link := newFakeLink()
	link.enqueue = &slave.QueueFullError{}
	f := start(t, link)
	f.scanner.events <- keys.Event{Key: keys.Shift, Pressed: true}

	require.Eventually(t, func() bool { return f.fw.Stats().DroppedEvents == 1 }, time.Second, time.Millisecond)
	select {
	case <-f.done:
		t.Fatalf("firmware stopped: %v", f.err)
	default:
	}
}

func TestFirmware_AppliesCommands(t *testing.T) {
	pink := color.RGBA{R: 0xFF, B: 0x20, A: 0xFF}
	f := start(t, newFakeLink())

	f.link.inbound <- proto.Fill{Color: pink}.Packet()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]color.RGBA{pink, pink, pink, pink}, f.display.last())
	}, time.Second, time.Millisecond)

	f.link.inbound <- proto.SetLEDs{Start: 3, Colors: []color.RGBA{leds.Off, pink}}.Packet()
	f.link.inbound <- proto.Animate{Pattern: leds.PatternNone}.Packet()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]color.RGBA{leds.Off, leds.Off, leds.Off, leds.Off}, f.display.last())
	}, time.Second, time.Millisecond)
	assert.Equal(t, uint32(3), f.fw.Stats().Commands)
}

func TestFirmware_IgnoresBadCommands(t *testing.T) {
	f := start(t, newFakeLink())
	f.link.inbound <- ottofw.Packet{0x7F}
	f.link.inbound <- proto.KeyEvent{Key: keys.Play}.Packet()
	f.link.inbound <- ottofw.Packet{byte(proto.KindSetLEDs), 0, 9}

	require.Eventually(t, func() bool { return f.fw.Stats().BadCommands == 3 }, time.Second, time.Millisecond)
	f.link.inbound <- proto.Fill{Color: color.RGBA{G: 1}}.Packet()
	require.Eventually(t, func() bool { return f.fw.Stats().Commands == 1 }, time.Second, time.Millisecond)
}

func TestFirmware_StopsOnLinkError(t *testing.T) {
	link := newFakeLink()
	link.received = slave.ErrClosed
	f := start(t, link)

	select {
	case <-f.done:
		assert.ErrorIs(t, f.err, slave.ErrClosed)
		assert.ErrorContains(t, f.err, "commands")
	case <-time.After(time.Second):
		t.Fatal("firmware kept running")
	}
}

func TestFirmware_Heartbeat(t *testing.T) {
	pin := &sim.Pin{}
	f := start(t, newFakeLink(), WithHeartbeat(pin, time.Millisecond))

	require.Eventually(t, func() bool { return pin.Toggles() >= 2 }, time.Second, time.Millisecond)
	f.stop()
	assert.Equal(t, gpio.Low, pin.Level())
}

func TestFirmware_BootPatternAnimates(t *testing.T) {
	f := start(t, newFakeLink(), WithBootPattern(leds.PatternWipe), WithAnimationInterval(time.Millisecond))

	require.Eventually(t, func() bool {
		frame := f.display.last()
		return len(frame) == 4 && frame[0] == leds.WipeColor
	}, time.Second, time.Millisecond)
}

func TestFirmware_Advance(t *testing.T) {
	fw := New(newFakeLink(), &fakeScanner{}, &fakeDisplay{}, WithStripLength(2))
	assert.False(t, fw.advance(), "no pattern")

	fw.pattern = leds.PatternWipe
	var frames []leds.Frame
	for range 5 {
		require.True(t, fw.advance())
		frames = append(frames, fw.Frame())
	}
	w, o := leds.WipeColor, leds.Off
	assert.Equal(t, []leds.Frame{{w, o}, {w, w}, {o, w}, {o, o}, {w, o}}, frames)

	empty := New(newFakeLink(), &fakeScanner{}, &fakeDisplay{}, WithStripLength(0), WithBootPattern(leds.PatternRainbow))
	assert.False(t, empty.advance())
}

func TestFirmware_ApplyStopsAnimation(t *testing.T) {
	fw := New(newFakeLink(), &fakeScanner{}, &fakeDisplay{}, WithStripLength(2), WithBootPattern(leds.PatternRainbow))
	require.NoError(t, fw.apply(proto.Fill{Color: color.RGBA{B: 9, A: 0xFF}}.Packet()))
	assert.Equal(t, leds.PatternNone, fw.pattern)

	err := fw.apply(ottofw.Packet{byte(proto.KindAnimate), 7})
	assert.True(t, errors.Is(err, proto.ErrMalformed))
}
