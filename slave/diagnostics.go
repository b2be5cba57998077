package slave

import "github.com/topisani/ottofw"

// diagnostics are recorded by the interrupt handlers and logged later from task
// context. Handlers only touch these fixed fields; they must not allocate.
type diagnostics struct {
	droppedBytes   uint32
	mismatches     uint32
	lastRxLen      int
	faults         uint32
	lastFaults     Flags
	lastFaultStage StageKind
}

func (g diagnostics) empty() bool {
	return g.droppedBytes == 0 && g.mismatches == 0 && g.faults == 0
}

// takeDiagnostics returns and clears the pending diagnostics. Call with the
// interrupt lines masked.
func (d *Driver) takeDiagnostics() diagnostics {
	g := d.diag
	d.diag = diagnostics{}
	return g
}

// FlushDiagnostics logs what the handlers recorded since the last flush. Receive
// flushes on every wake-up, so a task blocked in Receive needs no extra call.
func (d *Driver) FlushDiagnostics() {
	var g diagnostics
	d.critical(func() {
		g = d.takeDiagnostics()
	})
	d.report(g)
}

func (d *Driver) report(g diagnostics) {
	if g.empty() {
		return
	}
	if g.droppedBytes > 0 {
		d.log.Warn("rx buffer full, dropped bytes", "capacity", RxCapacity, "dropped", g.droppedBytes)
	}
	if g.mismatches > 0 {
		d.log.Warn("inbound length mismatch, delivered empty packet",
			"got", g.lastRxLen, "want", ottofw.PacketSize, "count", g.mismatches)
	}
	if g.faults > 0 {
		d.log.Warn("i2c bus fault", "faults", g.lastFaults.String(),
			"stage", g.lastFaultStage.String(), "count", g.faults)
	}
}
