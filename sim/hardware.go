package sim

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Matrix simulates a diode-isolated key matrix. Column pins are driven by the
// scanner; a row pin reads high when a pressed key connects it to a high column.
type Matrix struct {
	mu      sync.Mutex
	pressed [][]bool // [row][col]
	driven  []gpio.Level
}

func NewMatrix(rows, cols int) *Matrix {
	m := &Matrix{
		pressed: make([][]bool, rows),
		driven:  make([]gpio.Level, cols),
	}
	for r := range m.pressed {
		m.pressed[r] = make([]bool, cols)
	}
	return m
}

func (m *Matrix) Press(row, col int) {
	m.set(row, col, true)
}

func (m *Matrix) Release(row, col int) {
	m.set(row, col, false)
}

func (m *Matrix) set(row, col int, v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pressed[row][col] = v
}

// RowPins returns one input pin per row.
func (m *Matrix) RowPins() []*RowPin {
	pins := make([]*RowPin, len(m.pressed))
	for r := range pins {
		pins[r] = &RowPin{m: m, row: r}
	}
	return pins
}

// ColumnPins returns one output pin per column.
func (m *Matrix) ColumnPins() []*ColumnPin {
	pins := make([]*ColumnPin, len(m.driven))
	for c := range pins {
		pins[c] = &ColumnPin{m: m, col: c}
	}
	return pins
}

type RowPin struct {
	m   *Matrix
	row int
}

func (p *RowPin) Read() gpio.Level {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for c, level := range p.m.driven {
		if level == gpio.High && p.m.pressed[p.row][c] {
			return gpio.High
		}
	}
	return gpio.Low
}

type ColumnPin struct {
	m   *Matrix
	col int
}

func (p *ColumnPin) Out(l gpio.Level) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.driven[p.col] = l
	return nil
}

// Pin is a plain output pin that remembers its level and counts toggles.
type Pin struct {
	mu      sync.Mutex
	level   gpio.Level
	toggles int
}

func (p *Pin) Out(l gpio.Level) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l != p.level {
		p.toggles++
	}
	p.level = l
	return nil
}

func (p *Pin) Level() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *Pin) Toggles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

// SPI records transmitted frames. Only the latest is kept.
type SPI struct {
	mu     sync.Mutex
	last   []byte
	count  int
	notify chan struct{}
}

func NewSPI() *SPI {
	return &SPI{notify: make(chan struct{}, 1)}
}

func (s *SPI) Tx(w, r []byte) error {
	frame := make([]byte, len(w))
	copy(frame, w)
	s.mu.Lock()
	s.last = frame
	s.count++
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Last returns the most recent frame, or nil.
func (s *SPI) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Frames returns how many frames were sent.
func (s *SPI) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Written is signalled after each frame.
func (s *SPI) Written() <-chan struct{} {
	return s.notify
}
