package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/topisani/ottofw"
	"github.com/topisani/ottofw/client"
	"github.com/topisani/ottofw/keys"
	"github.com/topisani/ottofw/proto"
)

// MockTinyGoBus is a mock implementation of drivers.I2C using testify/mock
type MockTinyGoBus struct {
	mock.Mock
}

func (m *MockTinyGoBus) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return m.Called(addr, r, buf).Error(0)
}

func (m *MockTinyGoBus) WriteRegister(addr uint8, r uint8, buf []byte) error {
	return m.Called(addr, r, buf).Error(0)
}

func (m *MockTinyGoBus) Tx(addr uint16, w, r []byte) error {
	args := m.Called(addr, w, r)
	if data, ok := args.Get(0).([]byte); ok {
		copy(r, data)
	}
	return args.Error(1)
}

func TestDriversBus_CarriesClientTraffic(t *testing.T) {
	bus := new(MockTinyGoBus)
	d := client.New(NewDriversBus(bus))
	ctx := context.Background()

	ev := proto.KeyEvent{Key: keys.Arp, Pressed: true, Seq: 3}.Packet()
	bus.On("Tx", uint16(ottofw.DefaultAddress), []byte(nil), mock.Anything).Return(ev[:], nil).Once()
	fill := proto.Fill{}.Packet()
	bus.On("Tx", uint16(ottofw.DefaultAddress), fill[:], []byte(nil)).Return(nil, nil).Once()

	got, ok, err := d.NextEvent(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, keys.Arp, got.Key)
	require.NoError(t, d.Send(ctx, proto.Fill{}))
	bus.AssertExpectations(t)
}

func TestDriversBus_Errors(t *testing.T) {
	bus := new(MockTinyGoBus)
	b := NewDriversBus(bus)
	boom := errors.New("nack")
	bus.On("Tx", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	assert.ErrorIs(t, b.WriteToAddr(context.Background(), 0x77, []byte{1}), boom)
	assert.ErrorIs(t, b.ReadFromAddr(context.Background(), 0x77, make([]byte, 1)), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.ReadFromAddr(ctx, 0x77, make([]byte, 1)), context.Canceled)
	bus.AssertNumberOfCalls(t, "Tx", 2)
}
