// Package keys scans the controller's 8x8 key matrix and reports press and release
// events.
//
// Pins use periph.io levels, so any gpio.PinIn / gpio.PinOut can drive a Matrix.
//
//	m, err := keys.NewMatrix(rows, cols)
//	events, err := m.Poll(ctx)
package keys

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type InputPin interface {
	Read() gpio.Level
}

type OutputPin interface {
	Out(l gpio.Level) error
}

// Inputs widens a slice of concrete pins to []InputPin.
func Inputs[P InputPin](pins []P) []InputPin {
	out := make([]InputPin, len(pins))
	for i, p := range pins {
		out[i] = p
	}
	return out
}

// Outputs widens a slice of concrete pins to []OutputPin.
func Outputs[P OutputPin](pins []P) []OutputPin {
	out := make([]OutputPin, len(pins))
	for i, p := range pins {
		out[i] = p
	}
	return out
}

// pullConfigurer is implemented by periph gpio.PinIn.
type pullConfigurer interface {
	In(pull gpio.Pull, edge gpio.Edge) error
}

// Event is a change of a single key.
type Event struct {
	Key     Key
	Pressed bool
}

func (e Event) String() string {
	if e.Pressed {
		return "press " + e.Key.String()
	}
	return "release " + e.Key.String()
}

type MatrixOpts struct {
	Settle time.Duration
	Layout Layout
}

type MatrixOpt func(*MatrixOpts)

// WithSettle sets the delay between driving a column and sampling the rows.
func WithSettle(d time.Duration) MatrixOpt {
	return func(o *MatrixOpts) {
		o.Settle = d
	}
}

func WithLayout(l Layout) MatrixOpt {
	return func(o *MatrixOpts) {
		o.Layout = l
	}
}

// Matrix is a column-driven key matrix. Columns are driven high one at a time and
// rows read back with pull-downs.
type Matrix struct {
	rows   []InputPin
	cols   []OutputPin
	state  State
	config MatrixOpts
}

func NewMatrix(rows []InputPin, cols []OutputPin, opts ...MatrixOpt) (*Matrix, error) {
	if len(rows) == 0 || len(rows) > Rows {
		return nil, fmt.Errorf("keys: need 1..%d row pins, got %d", Rows, len(rows))
	}
	if len(cols) == 0 || len(cols) > Cols {
		return nil, fmt.Errorf("keys: need 1..%d column pins, got %d", Cols, len(cols))
	}
	config := MatrixOpts{
		Settle: time.Millisecond,
		Layout: DefaultLayout,
	}
	for _, opt := range opts {
		opt(&config)
	}
	for i, p := range rows {
		if pc, ok := p.(pullConfigurer); ok {
			if err := pc.In(gpio.PullDown, gpio.NoEdge); err != nil {
				return nil, fmt.Errorf("keys: could not configure row %d: %w", i, err)
			}
		}
	}
	for i, p := range cols {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("keys: could not configure column %d: %w", i, err)
		}
	}
	return &Matrix{rows: rows, cols: cols, config: config}, nil
}

// State returns the state recorded by the last scan.
func (m *Matrix) State() State {
	return m.state
}

// Pressed reports whether k was down at the last scan.
func (m *Matrix) Pressed(k Key) bool {
	r, c, ok := m.config.Layout.Position(k)
	if !ok {
		return false
	}
	return m.state.Get(Index(r, c))
}

// Scan samples the whole matrix and reports whether anything changed. The recorded
// state only moves when every column was sampled.
func (m *Matrix) Scan(ctx context.Context) (bool, error) {
	next := m.state
	for c, col := range m.cols {
		if err := col.Out(gpio.High); err != nil {
			return false, fmt.Errorf("keys: drive column %d: %w", c, err)
		}
		if err := m.settle(ctx); err != nil {
			_ = col.Out(gpio.Low)
			return false, err
		}
		for r, row := range m.rows {
			next.Set(Index(r, c), row.Read() == gpio.High)
		}
		if err := col.Out(gpio.Low); err != nil {
			return false, fmt.Errorf("keys: release column %d: %w", c, err)
		}
	}
	changed := next != m.state
	m.state = next
	return changed, nil
}

func (m *Matrix) settle(ctx context.Context) error {
	if m.config.Settle <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.config.Settle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll scans and returns the events for mapped keys that changed, in row-major
// layout order.
func (m *Matrix) Poll(ctx context.Context) ([]Event, error) {
	old := m.state
	changed, err := m.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, nil
	}
	var events []Event
	for r := 0; r < len(m.rows); r++ {
		for c := 0; c < len(m.cols); c++ {
			k := m.config.Layout[r][c]
			if k == None {
				continue
			}
			idx := Index(r, c)
			if old.Get(idx) != m.state.Get(idx) {
				events = append(events, Event{Key: k, Pressed: m.state.Get(idx)})
			}
		}
	}
	return events, nil
}
