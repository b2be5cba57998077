package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
)

func TestMatrix_RowsFollowDrivenColumns(t *testing.T) {
	m := NewMatrix(2, 3)
	rows, cols := m.RowPins(), m.ColumnPins()
	m.Press(1, 2)

	assert.Equal(t, gpio.Low, rows[1].Read(), "column not driven")
	_ = cols[2].Out(gpio.High)
	assert.Equal(t, gpio.High, rows[1].Read())
	assert.Equal(t, gpio.Low, rows[0].Read())
	_ = cols[2].Out(gpio.Low)
	_ = cols[0].Out(gpio.High)
	assert.Equal(t, gpio.Low, rows[1].Read(), "other column")

	m.Release(1, 2)
	_ = cols[2].Out(gpio.High)
	assert.Equal(t, gpio.Low, rows[1].Read())
}

func TestPin_CountsToggles(t *testing.T) {
	var p Pin
	_ = p.Out(gpio.High)
	_ = p.Out(gpio.High)
	_ = p.Out(gpio.Low)
	assert.Equal(t, 2, p.Toggles())
	assert.Equal(t, gpio.Low, p.Level())
}

func TestSPI_KeepsLastFrame(t *testing.T) {
	s := NewSPI()
	assert.Nil(t, s.Last())
	w := []byte{1, 2, 3}
	_ = s.Tx(w, nil)
	w[0] = 9
	assert.Equal(t, []byte{1, 2, 3}, s.Last(), "frame is copied")
	_ = s.Tx([]byte{4}, nil)
	assert.Equal(t, []byte{4}, s.Last())
	assert.Equal(t, 2, s.Frames())
	select {
	case <-s.Written():
	default:
		t.Fatal("no write notification")
	}
}
