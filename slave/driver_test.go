package slave_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/sim"
	"github.com/topisani/ottofw/slave"
)

const addr = ottofw.DefaultAddress

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	dev    *sim.Device
	master *sim.Master
	driver *slave.Driver
	logs   *syncBuffer
}

func newFixture(t *testing.T, opts ...slave.Option) *fixture {
	t.Helper()
	logs := &syncBuffer{}
	dev := sim.NewDevice()
	opts = append([]slave.Option{slave.WithLogger(slog.New(slog.NewTextHandler(logs, nil)))}, opts...)
	d, err := slave.New(slave.NewPeripheral(dev), dev, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return &fixture{dev: dev, master: sim.NewMaster(dev), driver: d, logs: logs}
}

func packet(seed byte) ottofw.Packet {
	var p ottofw.Packet
	for i := range p {
		p[i] = seed + byte(i)
	}
	return p
}

func receive(t *testing.T, d *slave.Driver) ottofw.Packet {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p, err := d.Receive(ctx)
	require.NoError(t, err)
	return p
}

func TestNew_ConfiguresPeripheral(t *testing.T) {
	f := newFixture(t, slave.WithAddress(0x42))
	assert.True(t, f.dev.ClockEnabled())
	assert.True(t, f.dev.Enabled())
	assert.True(t, f.dev.AckEnabled())
	assert.Equal(t, byte(0x42), f.dev.Address())
	assert.Equal(t, uint16(0x42), f.driver.Address())
	assert.Equal(t, slave.StageWaiting, f.driver.Stage())
}

func TestNew_InvalidAddress(t *testing.T) {
	for _, address := range []uint16{0x00, 0x07, 0x78, 0x7F, 0x100} {
		dev := sim.NewDevice()
		_, err := slave.New(slave.NewPeripheral(dev), dev, slave.WithAddress(address))
		assert.ErrorIs(t, err, slave.ErrInvalidAddress, "address %#x", address)
		assert.False(t, dev.Enabled())
	}
}

func TestNew_PanicsInInterruptContext(t *testing.T) {
	dev := sim.NewDevice()
	assert.Panics(t, func() {
		dev.InInterruptContext(func() {
			_, _ = slave.New(slave.NewPeripheral(dev), dev)
		})
	})
}

func TestDriver_HostReadsQueuedPacketsInOrder(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Enqueue(packet(1)))
	require.NoError(t, f.driver.Enqueue(packet(50)))
	assert.Equal(t, 2, f.driver.Pending())

	ctx := context.Background()
	var got ottofw.Packet
	require.NoError(t, f.master.ReadFromAddr(ctx, addr, got[:]))
	assert.Equal(t, packet(1), got)
	require.NoError(t, f.master.ReadFromAddr(ctx, addr, got[:]))
	assert.Equal(t, packet(50), got)

	assert.Zero(t, f.driver.Pending())
	assert.Equal(t, slave.StageWaiting, f.driver.Stage())
	stats := f.driver.Stats()
	assert.Equal(t, uint32(2), stats.ReadTransfers)
	assert.Equal(t, uint32(2), stats.ReadTerminations)
	assert.Zero(t, stats.Faults)
}

func TestDriver_EmptyQueueSendsZeroPacket(t *testing.T) {
	f := newFixture(t)
	got := packet(9)
	require.NoError(t, f.master.ReadFromAddr(context.Background(), addr, got[:]))
	assert.Equal(t, ottofw.Packet{}, got)
	assert.Equal(t, uint32(1), f.driver.Stats().EmptyReads)
}

func TestDriver_LongReadPadsWithZeros(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Enqueue(packet(1)))
	got := make([]byte, ottofw.PacketSize+3)
	require.NoError(t, f.master.ReadFromAddr(context.Background(), addr, got))
	want := packet(1)
	assert.Equal(t, want[:], got[:ottofw.PacketSize])
	assert.Equal(t, []byte{0, 0, 0}, got[ottofw.PacketSize:])
}

func TestDriver_AbortedReadLosesPacket(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Enqueue(packet(1)))
	require.NoError(t, f.driver.Enqueue(packet(2)))
	require.NoError(t, f.master.BeginRead(addr))
	_, err := f.master.ReadByte()
	require.NoError(t, err)
	require.NoError(t, f.master.Nack())

	var got ottofw.Packet
	require.NoError(t, f.master.ReadFromAddr(context.Background(), addr, got[:]))
	assert.Equal(t, packet(2), got)
}

func TestDriver_AbortedReadIsNotAFault(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Enqueue(packet(1)))
	require.NoError(t, f.master.BeginRead(addr))
	_, err := f.master.ReadByte()
	require.NoError(t, err)
	require.NoError(t, f.master.Nack())
	f.driver.FlushDiagnostics()

	stats := f.driver.Stats()
	assert.Zero(t, stats.Faults)
	assert.Equal(t, uint32(1), stats.ReadTerminations)
	assert.Equal(t, slave.StageWaiting, f.driver.Stage())
	assert.NotContains(t, f.logs.String(), "i2c bus fault")
}

func TestDriver_QueueFull(t *testing.T) {
	f := newFixture(t)
	for i := range slave.QueueCapacity {
		require.NoError(t, f.driver.Enqueue(packet(byte(i))))
	}
	err := f.driver.Enqueue(packet(0xAA))
	require.ErrorIs(t, err, slave.ErrQueueFull)
	var qfe *slave.QueueFullError
	require.True(t, errors.As(err, &qfe))
	assert.Equal(t, packet(0xAA), qfe.Packet)
	assert.Equal(t, slave.QueueCapacity, f.driver.Pending())
}

func TestDriver_ReceivePacket(t *testing.T) {
	f := newFixture(t)
	p := packet(7)
	require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
	assert.Equal(t, slave.StageReceivedDataReady, f.driver.Stage())

	assert.Equal(t, p, receive(t, f.driver))
	assert.Equal(t, slave.StageWaiting, f.driver.Stage())
	assert.True(t, f.dev.AckEnabled())
	assert.Equal(t, uint32(1), f.driver.Stats().Received)
}

func TestDriver_ReceiveWakesBlockedTask(t *testing.T) {
	f := newFixture(t)
	p := packet(3)
	result := make(chan ottofw.Packet, 1)
	go func() {
		got, err := f.driver.Receive(context.Background())
		if err == nil {
			result <- got
		}
	}()
	require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
	select {
	case got := <-result:
		assert.Equal(t, p, got)
	case <-time.After(time.Second):
		t.Fatal("receive not woken")
	}
}

func TestDriver_PacketDeliveredOnce(t *testing.T) {
	f := newFixture(t)
	p := packet(5)
	require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
	assert.Equal(t, p, receive(t, f.driver))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.driver.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint32(1), f.driver.Stats().Received)
}

func TestDriver_DiagnosticsWakeBlockedReceive(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		_, err := f.driver.Receive(ctx)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	f.dev.RaiseFault(slave.FlagBusError)

	// the blocked task logs the fault on its own; no packet is delivered
	assert.Eventually(t, func() bool {
		return strings.Contains(f.logs.String(), "i2c bus fault")
	}, time.Second, 5*time.Millisecond)
	select {
	case err := <-errs:
		t.Fatalf("receive returned early: %v", err)
	default:
	}
	cancel()
	require.ErrorIs(t, <-errs, context.Canceled)
}

func TestDriver_InterleavedTransfers(t *testing.T) {
	type step func(t *testing.T, f *fixture)
	write := func(seed byte) step {
		return func(t *testing.T, f *fixture) {
			p := packet(seed)
			require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
			assert.Equal(t, p, receive(t, f.driver))
		}
	}
	read := func(seed byte) step {
		return func(t *testing.T, f *fixture) {
			require.NoError(t, f.driver.Enqueue(packet(seed)))
			var got ottofw.Packet
			require.NoError(t, f.master.ReadFromAddr(context.Background(), addr, got[:]))
			assert.Equal(t, packet(seed), got)
		}
	}
	// restartWrite abandons a partial write with a repeated start and sends p
	restartWrite := func(seed byte) step {
		return func(t *testing.T, f *fixture) {
			require.NoError(t, f.master.BeginWrite(addr))
			for _, b := range []byte{0xEE, 0xEE, 0xEE} {
				require.NoError(t, f.master.WriteByte(b))
			}
			p := packet(seed)
			require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
			assert.Equal(t, p, receive(t, f.driver))
		}
	}
	// restartRead abandons a partial write with a repeated start into a read
	restartRead := func(seed byte) step {
		return func(t *testing.T, f *fixture) {
			require.NoError(t, f.master.BeginWrite(addr))
			require.NoError(t, f.master.WriteByte(0xEE))
			read(seed)(t, f)
		}
	}

	tests := []struct {
		name  string
		steps []step
	}{
		{"write read write", []step{write(0x10), read(0x20), write(0x30)}},
		{"read write read", []step{read(0x20), write(0x10), read(0x40)}},
		{"restarted write between reads", []step{read(0x20), restartWrite(0x50), read(0x60)}},
		{"write then restarted write", []step{write(0x10), restartWrite(0x70), write(0x80)}},
		{"restarted read between writes", []step{write(0x10), restartRead(0x90), write(0xA0)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			for _, s := range test.steps {
				s(t, f)
			}
			stats := f.driver.Stats()
			assert.Zero(t, stats.Faults)
			assert.Zero(t, stats.LengthMismatches)
			assert.Equal(t, slave.StageWaiting, f.driver.Stage())
		})
	}
}

func TestDriver_BackpressureUntilTaskReceives(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, second := packet(1), packet(2)
	require.NoError(t, f.master.WriteToAddr(ctx, addr, first[:]))
	assert.False(t, f.dev.AckEnabled())

	err := f.master.WriteToAddr(ctx, addr, second[:])
	require.ErrorIs(t, err, ottofw.ErrNack)
	err = f.master.BeginRead(addr)
	require.ErrorIs(t, err, ottofw.ErrNack, "reads are held off too")

	assert.Equal(t, first, receive(t, f.driver))
	require.NoError(t, f.master.WriteToAddr(ctx, addr, second[:]))
	assert.Equal(t, second, receive(t, f.driver))
}

func TestDriver_LengthMismatch(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		dropped uint32
	}{
		{"empty", 0, 0},
		{"short", 5, 0},
		{"long", ottofw.PacketSize + 1, 0},
		{"overflow", slave.RxCapacity + 6, 6},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			data := bytes.Repeat([]byte{0x5A}, test.n)
			require.NoError(t, f.master.WriteToAddr(context.Background(), addr, data))
			assert.Equal(t, ottofw.Packet{}, receive(t, f.driver))
			stats := f.driver.Stats()
			assert.Equal(t, uint32(1), stats.LengthMismatches)
			assert.Equal(t, test.dropped, stats.DroppedBytes)
			assert.Contains(t, f.logs.String(), "inbound length mismatch")
			if test.dropped > 0 {
				assert.Contains(t, f.logs.String(), "rx buffer full")
			}
		})
	}
}

func TestDriver_ReceiveHonoursContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.driver.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, slave.StageWaiting, f.driver.Stage())

	p := packet(4)
	require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
	assert.Equal(t, p, receive(t, f.driver))
}

func TestDriver_FaultRecovery(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(t *testing.T, f *fixture)
		faults slave.Flags
	}{
		{
			name:   "bus error while idle",
			setup:  func(t *testing.T, f *fixture) {},
			faults: slave.FlagBusError,
		},
		{
			name: "arbitration lost while receiving",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.master.BeginWrite(addr))
				require.NoError(t, f.master.WriteByte(0x01))
			},
			faults: slave.FlagArbitration,
		},
		{
			name: "ack failure with bus error while transmitting",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.master.BeginRead(addr))
			},
			faults: slave.FlagAckFailure | slave.FlagBusError,
		},
		{
			name: "ack failure while receiving",
			setup: func(t *testing.T, f *fixture) {
				require.NoError(t, f.master.BeginWrite(addr))
			},
			faults: slave.FlagAckFailure,
		},
		{
			name: "timeout after completed write",
			setup: func(t *testing.T, f *fixture) {
				p := packet(1)
				require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
			},
			faults: slave.FlagTimeout | slave.FlagOverrun,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			test.setup(t, f)
			f.dev.RaiseFault(test.faults)

			assert.Equal(t, slave.StageWaiting, f.driver.Stage())
			assert.Zero(t, f.dev.Flags(), "all status flags cleared")
			assert.True(t, f.dev.AckEnabled())
			stats := f.driver.Stats()
			assert.Equal(t, uint32(1), stats.Faults)
			assert.Zero(t, stats.ReadTerminations)
			assert.NotContains(t, f.logs.String(), "i2c bus fault", "handlers do not log")
			f.driver.FlushDiagnostics()
			assert.Contains(t, f.logs.String(), "i2c bus fault")
			assert.Contains(t, f.logs.String(), test.faults.String())

			// the bus is usable again
			p := packet(8)
			require.NoError(t, f.master.Release(context.Background()))
			require.NoError(t, f.master.WriteToAddr(context.Background(), addr, p[:]))
			assert.Equal(t, p, receive(t, f.driver))
		})
	}
}

func TestDriver_StrayEventsResync(t *testing.T) {
	f := newFixture(t)
	f.dev.RaiseEvent(slave.FlagStop)
	f.dev.RaiseEvent(slave.FlagRxNotEmpty)
	f.dev.RaiseEvent(slave.FlagTxEmpty)

	assert.Equal(t, uint32(3), f.driver.Stats().Resyncs)
	assert.False(t, f.dev.Flags().Has(slave.FlagStop))
	assert.False(t, f.dev.Flags().Has(slave.FlagRxNotEmpty))
	assert.Equal(t, slave.StageWaiting, f.driver.Stage())
}

func TestDriver_Close(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.driver.Enqueue(packet(1)))

	errs := make(chan error, 1)
	go func() {
		_, err := f.driver.Receive(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, f.driver.Close())
	require.NoError(t, f.driver.Close(), "close is idempotent")

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, slave.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked receive not released")
	}
	assert.ErrorIs(t, f.driver.Enqueue(packet(2)), slave.ErrClosed)
	_, err := f.driver.Receive(context.Background())
	assert.ErrorIs(t, err, slave.ErrClosed)
	assert.Zero(t, f.driver.Pending())
	assert.False(t, f.dev.ClockEnabled())
	assert.False(t, f.dev.Enabled())
	assert.ErrorIs(t, f.master.BeginRead(addr), ottofw.ErrNack)
}
