// Package adapter drives USB-to-I2C bridges used to reach the controller from a
// workstation.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/topisani/ottofw"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// reportSize is the fixed HID report length in both directions.
const reportSize = 64

// maxPayload is the largest I2C transfer a single report carries.
const maxPayload = 60

const (
	cmdStatus      = 0x10
	cmdWrite       = 0x90
	cmdRead        = 0x91
	cmdGetReadData = 0x40
)

var ErrNotFound = errors.New("MCP2221 device not found")
var ErrCommandFailed = errors.New("command failed")

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Opts struct {
	ResponseWait time.Duration
	// Index selects among several attached bridges, in enumeration order.
	Index  int
	Logger *slog.Logger
}

type MCP2221Opt func(*MCP2221Opts)

func WithResponseWait(d time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = d
	}
}

func WithIndex(i int) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Index = i
	}
}

func WithLogger(logger *slog.Logger) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Logger = logger
	}
}

var _ ottofw.I2CBus = &MCP2221{}

type MCP2221 struct {
	mx       sync.Mutex
	config   MCP2221Opts
	log      *slog.Logger
	request  []byte
	response []byte
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		ResponseWait: 50 * time.Millisecond,
		Index:        -1,
		Logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &MCP2221{
		config:   config,
		log:      config.Logger.With("adapter", "mcp2221"),
		request:  make([]byte, reportSize),
		response: make([]byte, reportSize),
	}
}

// Devices lists attached bridges.
func Devices() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

// Init checks that the bridge selected by the options is attached.
func (d *MCP2221) Init() error {
	if !hid.Supported() {
		return errors.New("hid is not supported on this platform")
	}
	_, err := d.selectDevice()
	return err
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxPayload {
		return fmt.Errorf("write to %x failed: %d bytes exceeds report payload", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWrite
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy")
		return ottofw.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxPayload {
		return fmt.Errorf("read from %x failed: %d bytes exceeds report payload", address, len(buffer))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdRead
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy")
		return ottofw.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdGetReadData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("read from %x: %w", address, ottofw.ErrNack)
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:4+len(buffer)])
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9-10:  requested I2C transfer length (LE)
		11-12: bytes already transferred (LE)
		13:    internal I2C data buffer counter
		14:    current I2C speed divider
		15:    current I2C timeout
		16-17: I2C address in use
		25:    read pending
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		ReadPending:            int(buffer[25]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
	}
}

// Release cancels any pending transfer, freeing a bus left stuck by the slave.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = 0x10
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) selectDevice() (hid.DeviceInfo, error) {
	devs := Devices()
	switch {
	case len(devs) == 0:
		return hid.DeviceInfo{}, ErrNotFound
	case d.config.Index < 0 && len(devs) > 1:
		return hid.DeviceInfo{}, fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
	case d.config.Index < 0:
		return devs[0], nil
	case d.config.Index >= len(devs):
		return hid.DeviceInfo{}, fmt.Errorf("no device with index %d", d.config.Index)
	default:
		return devs[d.config.Index], nil
	}
}

func (d *MCP2221) send(ctx context.Context) error {
	info, err := d.selectDevice()
	if err != nil {
		return err
	}
	dev, err := info.Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("could not close device", "error", err)
		}
	}()
	d.log.Debug("sending message to adapter", "request", hex.EncodeToString(d.request[:8]))
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	timer := time.NewTimer(d.config.ResponseWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	d.log.Debug("read message from adapter", "response", hex.EncodeToString(d.response[:8]))
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
